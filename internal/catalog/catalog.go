package catalog

import (
	"fmt"

	"github.com/spf13/viper"

	"macrowatch/internal/source"
)

// SeriesDefinition identifies one tracked economic series. series_id is the
// storage key; source_series_id is the identifier sent to the provider when
// it differs, and fallback_series_id the identifier used after a quota
// re-route to the fallback source.
type SeriesDefinition struct {
	SeriesID           string `mapstructure:"series_id"`
	Title              string `mapstructure:"title"`
	Units              string `mapstructure:"units"`
	Frequency          string `mapstructure:"frequency"`
	SeasonalAdjustment string `mapstructure:"seasonal_adjustment"`
	Tier               int    `mapstructure:"tier"`
	Source             source.Source
	SourceRaw          string `mapstructure:"source"`
	SourceSeriesID     string `mapstructure:"source_series_id"`
	FallbackSeriesID   string `mapstructure:"fallback_series_id"`
	Description        string `mapstructure:"description"`
}

// RequestID returns the identifier used for the provider fetch call.
func (d SeriesDefinition) RequestID() string {
	if d.SourceSeriesID != "" {
		return d.SourceSeriesID
	}
	return d.SeriesID
}

// FallbackRequestID returns the identifier used after re-routing to the
// fallback source.
func (d SeriesDefinition) FallbackRequestID() string {
	if d.FallbackSeriesID != "" {
		return d.FallbackSeriesID
	}
	return d.RequestID()
}

// Catalog holds the validated series list. Read-only after Load; safe for
// concurrent reads.
type Catalog struct {
	series []SeriesDefinition
	byID   map[string]SeriesDefinition
}

// Load reads and validates the series catalog from a YAML file. Any
// validation failure is a configuration error and aborts before a run starts.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read series catalog: %w", err)
	}

	var defs []SeriesDefinition
	if err := v.UnmarshalKey("series", &defs); err != nil {
		return nil, fmt.Errorf("unmarshal series catalog: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("series catalog %s defines no series", path)
	}

	return New(defs)
}

// New validates a series list and builds a Catalog.
func New(defs []SeriesDefinition) (*Catalog, error) {
	byID := make(map[string]SeriesDefinition, len(defs))
	validated := make([]SeriesDefinition, 0, len(defs))

	for i, def := range defs {
		if def.SeriesID == "" {
			return nil, fmt.Errorf("series[%d]: series_id is required", i)
		}
		if _, dup := byID[def.SeriesID]; dup {
			return nil, fmt.Errorf("series %s: duplicate series_id", def.SeriesID)
		}
		if def.Title == "" {
			return nil, fmt.Errorf("series %s: title is required", def.SeriesID)
		}
		if def.Units == "" {
			return nil, fmt.Errorf("series %s: units is required", def.SeriesID)
		}
		if def.Frequency == "" {
			return nil, fmt.Errorf("series %s: frequency is required", def.SeriesID)
		}
		if def.Tier < 1 {
			return nil, fmt.Errorf("series %s: tier must be >= 1", def.SeriesID)
		}

		raw := def.SourceRaw
		if raw == "" && def.Source != "" {
			raw = def.Source.String()
		}
		src, err := source.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", def.SeriesID, err)
		}
		def.Source = src
		def.SourceRaw = src.String()

		byID[def.SeriesID] = def
		validated = append(validated, def)
	}

	return &Catalog{series: validated, byID: byID}, nil
}

// All returns every configured series in catalog order.
func (c *Catalog) All() []SeriesDefinition {
	out := make([]SeriesDefinition, len(c.series))
	copy(out, c.series)
	return out
}

// BySource filters series by provider.
func (c *Catalog) BySource(src source.Source) []SeriesDefinition {
	var out []SeriesDefinition
	for _, def := range c.series {
		if def.Source == src {
			out = append(out, def)
		}
	}
	return out
}

// Sources lists the distinct providers in first-appearance catalog order.
func (c *Catalog) Sources() []source.Source {
	seen := make(map[source.Source]bool)
	var out []source.Source
	for _, def := range c.series {
		if !seen[def.Source] {
			seen[def.Source] = true
			out = append(out, def.Source)
		}
	}
	return out
}

// ByTier filters series by priority tier.
func (c *Catalog) ByTier(tier int) []SeriesDefinition {
	var out []SeriesDefinition
	for _, def := range c.series {
		if def.Tier == tier {
			out = append(out, def)
		}
	}
	return out
}

// Get looks up a single series definition.
func (c *Catalog) Get(seriesID string) (SeriesDefinition, bool) {
	def, ok := c.byID[seriesID]
	return def, ok
}

// Len reports the number of configured series.
func (c *Catalog) Len() int {
	return len(c.series)
}
