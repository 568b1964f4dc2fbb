// Package validation runs post-ingestion data-quality checks over the
// observations store and reports findings by severity.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"macrowatch/internal/catalog"
	"macrowatch/internal/storage"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Finding is one data-quality issue detected after a run.
type Finding struct {
	Severity Severity
	Code     string
	Message  string
	SeriesID string
	Metadata map[string]any
}

// Stats holds the per-series row counts of one ingestion run.
type Stats struct {
	RowsFetched int64
	RowsWritten int64
}

// Reader is the storage surface the checks need.
type Reader interface {
	QueryDuplicates(ctx context.Context) ([]storage.DuplicateKey, error)
	LatestObservationDate(ctx context.Context, seriesID string) (*time.Time, error)
	LatestTwo(ctx context.Context, seriesID string) (*storage.ValuePair, error)
}

// Validator evaluates the data-quality checks against stored observations.
type Validator struct {
	reader Reader
	now    func() time.Time
}

func New(reader Reader) *Validator {
	return &Validator{reader: reader, now: time.Now}
}

// RunChecks executes all checks for one run. Checks that fail to read the
// store do not stop the remaining checks; their errors are joined and
// returned alongside the findings collected so far.
func (v *Validator) RunChecks(
	ctx context.Context,
	mode string,
	series []catalog.SeriesDefinition,
	stats map[string]Stats,
) ([]Finding, error) {
	findings := make([]Finding, 0)
	var errs []error

	findings = append(findings, checkMissingSeries(mode, series, stats)...)

	duplicateFindings, err := v.checkDuplicates(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("duplicate check: %w", err))
	}
	findings = append(findings, duplicateFindings...)

	freshnessFindings, err := v.checkFreshness(ctx, series)
	if err != nil {
		errs = append(errs, fmt.Errorf("freshness check: %w", err))
	}
	findings = append(findings, freshnessFindings...)

	anomalyFindings, err := v.checkRecentAnomalies(ctx, series)
	if err != nil {
		errs = append(errs, fmt.Errorf("anomaly check: %w", err))
	}
	findings = append(findings, anomalyFindings...)

	return findings, errors.Join(errs...)
}

// CountBySeverity tallies findings per severity, always returning all three keys.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := map[Severity]int{
		SeverityInfo:     0,
		SeverityWarning:  0,
		SeverityCritical: 0,
	}
	for _, finding := range findings {
		counts[finding.Severity]++
	}
	return counts
}

// Summarize renders a short one-line digest of findings, truncated at maxItems.
func Summarize(findings []Finding, maxItems int) string {
	if len(findings) == 0 {
		return "No findings."
	}

	rendered := make([]string, 0, maxItems)
	for i, finding := range findings {
		if i >= maxItems {
			break
		}
		if finding.SeriesID != "" {
			rendered = append(rendered, fmt.Sprintf("%s(%s)", finding.Code, finding.SeriesID))
		} else {
			rendered = append(rendered, finding.Code)
		}
	}

	summary := strings.Join(rendered, ", ")
	if len(findings) > maxItems {
		summary += fmt.Sprintf(", +%d more", len(findings)-maxItems)
	}
	return summary
}

func checkMissingSeries(mode string, series []catalog.SeriesDefinition, stats map[string]Stats) []Finding {
	findings := make([]Finding, 0)

	if mode == "backfill" {
		for _, def := range series {
			fetched := stats[def.SeriesID].RowsFetched
			if fetched == 0 {
				findings = append(findings, Finding{
					Severity: SeverityCritical,
					Code:     "missing_series_data",
					Message:  "No rows fetched during backfill for required series.",
					SeriesID: def.SeriesID,
					Metadata: map[string]any{"mode": mode, "rows_fetched": fetched},
				})
			}
		}
		return findings
	}

	var total int64
	for _, def := range series {
		total += stats[def.SeriesID].RowsFetched
	}
	if total == 0 {
		findings = append(findings, Finding{
			Severity: SeverityWarning,
			Code:     "incremental_no_new_rows",
			Message:  "Incremental run fetched no rows for all configured series.",
			Metadata: map[string]any{"mode": mode, "total_fetched": total},
		})
	}
	return findings
}

func (v *Validator) checkDuplicates(ctx context.Context) ([]Finding, error) {
	duplicates, err := v.reader.QueryDuplicates(ctx)
	if err != nil {
		return nil, err
	}

	findings := make([]Finding, 0, len(duplicates))
	for _, dup := range duplicates {
		findings = append(findings, Finding{
			Severity: SeverityCritical,
			Code:     "duplicate_observations",
			Message:  fmt.Sprintf("Found duplicate observations (count=%d).", dup.Count),
			SeriesID: dup.SeriesID,
			Metadata: map[string]any{"duplicate_count": dup.Count},
		})
	}
	return findings, nil
}

func (v *Validator) checkFreshness(ctx context.Context, series []catalog.SeriesDefinition) ([]Finding, error) {
	findings := make([]Finding, 0)
	today := v.now()

	for _, def := range series {
		latest, err := v.reader.LatestObservationDate(ctx, def.SeriesID)
		if err != nil {
			return findings, err
		}

		if latest == nil {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Code:     "series_has_no_observations",
				Message:  "Series has no observations in the database.",
				SeriesID: def.SeriesID,
				Metadata: map[string]any{"frequency": def.Frequency},
			})
			continue
		}

		ageDays := int(today.Sub(*latest).Hours() / 24)
		threshold := freshnessThresholdDays(def.Frequency)
		if ageDays > threshold {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Code:     "stale_series_data",
				Message:  fmt.Sprintf("Latest observation is %d days old (threshold %d).", ageDays, threshold),
				SeriesID: def.SeriesID,
				Metadata: map[string]any{
					"age_days":       ageDays,
					"threshold_days": threshold,
					"frequency":      def.Frequency,
				},
			})
		}
	}
	return findings, nil
}

// smallBase filters out series whose previous value is too close to zero for
// a relative change to be meaningful.
var smallBase = decimal.RequireFromString("0.1")

var hundred = decimal.NewFromInt(100)

func (v *Validator) checkRecentAnomalies(ctx context.Context, series []catalog.SeriesDefinition) ([]Finding, error) {
	findings := make([]Finding, 0)

	for _, def := range series {
		pair, err := v.reader.LatestTwo(ctx, def.SeriesID)
		if err != nil {
			return findings, err
		}
		if pair == nil || pair.Previous == nil || pair.Previous.IsZero() {
			continue
		}
		previous := *pair.Previous
		if previous.Abs().LessThan(smallBase) {
			continue
		}

		pctChange := pair.Latest.Sub(previous).Div(previous.Abs()).Abs().Mul(hundred)
		if pctChange.GreaterThan(hundred) {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Code:     "rapid_change_detected",
				Message:  fmt.Sprintf("Large latest-period change detected (%s%%).", pctChange.StringFixed(2)),
				SeriesID: def.SeriesID,
				Metadata: map[string]any{"pct_change": pctChange.Round(4).String()},
			})
		}
	}
	return findings, nil
}

func freshnessThresholdDays(frequency string) int {
	normalized := strings.ToLower(strings.TrimSpace(frequency))

	switch {
	case strings.HasPrefix(normalized, "d"):
		return 10
	case strings.HasPrefix(normalized, "w"):
		return 28
	case strings.HasPrefix(normalized, "m"):
		return 90
	case strings.HasPrefix(normalized, "q"):
		return 200
	case strings.HasPrefix(normalized, "a"):
		return 550
	}
	return 180
}
