package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"macrowatch/internal/source"
)

// censusDataset maps an internal series id to a Census timeseries dataset.
// The Census API returns a header row followed by data rows, with dataset-
// specific variable names for the time and value columns.
type censusDataset struct {
	dataset    string
	timeVar    string
	valueVar   string
	timeLayout string
	params     map[string]string
}

var censusSeries = map[string]censusDataset{
	"CENSUS_EXP_GOODS": {
		dataset:    "timeseries/intltrade/exports/hs",
		timeVar:    "MONTH",
		valueVar:   "ALL_VAL_MO",
		timeLayout: "2006-01",
		params:     map[string]string{"COMM_LVL": "HS2", "DISTRICT": "TOTAL"},
	},
	"CENSUS_IMP_GOODS": {
		dataset:    "timeseries/intltrade/imports/hs",
		timeVar:    "MONTH",
		valueVar:   "GEN_VAL_MO",
		timeLayout: "2006-01",
		params:     map[string]string{"COMM_LVL": "HS2", "DISTRICT": "TOTAL"},
	},
	"CENSUS_INV_MFG": {
		dataset:    "timeseries/eits/mwts",
		timeVar:    "time_slot_date",
		valueVar:   "cell_value",
		timeLayout: "2006-01-02",
		params:     map[string]string{"seasonally_adj": "yes", "category_code": "MNSI", "data_type_code": "INV"},
	},
	"CENSUS_INV_RETAIL": {
		dataset:    "timeseries/eits/mwts",
		timeVar:    "time_slot_date",
		valueVar:   "cell_value",
		timeLayout: "2006-01-02",
		params:     map[string]string{"seasonally_adj": "yes", "category_code": "MRSI", "data_type_code": "INV"},
	},
}

// Census fetches observations from the U.S. Census Bureau timeseries API.
type Census struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	pace    pacer
}

// NewCensus constructs a Census Bureau client.
func NewCensus(opts Options, logger zerolog.Logger) *Census {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.census.gov/data"
	}

	return &Census{
		opts:    opts,
		logger:  logger.With().Str("component", "census_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		pace:    pacer{min: opts.MinInterval},
	}
}

// Fetch retrieves observations for one mapped Census series.
func (c *Census) Fetch(ctx context.Context, seriesID string, start time.Time, end *time.Time) ([]source.Observation, error) {
	mapping, ok := censusSeries[seriesID]
	if !ok {
		return nil, source.NewPermanent(fmt.Sprintf("unknown census series %q", seriesID), nil)
	}

	return fetchWithRetry(ctx, func() ([]source.Observation, error) {
		return c.fetchOnce(ctx, mapping, start, end)
	})
}

func (c *Census) fetchOnce(ctx context.Context, mapping censusDataset, start time.Time, end *time.Time) ([]source.Observation, error) {
	if err := c.pace.wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("get", mapping.timeVar+","+mapping.valueVar)
	for key, value := range mapping.params {
		query.Set(key, value)
	}
	if c.opts.APIKey != "" {
		query.Set("key", c.opts.APIKey)
	}

	endpoint := c.baseURL + "/" + mapping.dataset + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, source.NewPermanent("build census request", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, source.NewTransient("census request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.NewTransient("read census response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, source.NewRateLimited(fmt.Sprintf("census api rate limit (%d)", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return nil, source.NewTransient(fmt.Sprintf("census api error (%d)", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, source.NewPermanent(fmt.Sprintf("census api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	// Row-oriented payload: first row is the header, every cell a string.
	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, source.NewTransient("decode census response", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	timeIdx, valueIdx := -1, -1
	for i, name := range rows[0] {
		switch name {
		case mapping.timeVar:
			timeIdx = i
		case mapping.valueVar:
			valueIdx = i
		}
	}
	if timeIdx < 0 || valueIdx < 0 {
		return nil, source.NewPermanent("census response missing requested columns", nil)
	}

	observations := make([]source.Observation, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if timeIdx >= len(row) || valueIdx >= len(row) {
			continue
		}
		date, err := time.Parse(mapping.timeLayout, row[timeIdx])
		if err != nil {
			continue
		}
		value, err := decimal.NewFromString(row[valueIdx])
		if err != nil {
			continue
		}
		observations = append(observations, source.Observation{Date: date, Value: value})
	}

	// The dataset endpoints have no reliable server-side date filter, so the
	// window is applied locally.
	sortByDate(observations)
	observations = withinWindow(observations, start, end)
	c.logger.Debug().Str("dataset", mapping.dataset).Int("rows", len(observations)).Msg("census fetch complete")
	return observations, nil
}

var _ source.Adapter = (*Census)(nil)
