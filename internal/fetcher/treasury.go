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

// treasuryEndpoint maps an internal series id onto a Fiscal Data endpoint,
// row filter, and value field. The Fiscal Data API has no native notion of a
// series id, so the mapping lives client-side.
type treasuryEndpoint struct {
	path       string
	filter     string
	dateField  string
	valueField string
}

var treasurySeries = map[string]treasuryEndpoint{
	"TREAS_AVG_BILLS": {
		path:       "/v2/accounting/od/avg_interest_rates",
		filter:     "security_type_desc:eq:Treasury Bills",
		dateField:  "record_date",
		valueField: "avg_interest_rate_amt",
	},
	"TREAS_AVG_NOTES": {
		path:       "/v2/accounting/od/avg_interest_rates",
		filter:     "security_type_desc:eq:Treasury Notes",
		dateField:  "record_date",
		valueField: "avg_interest_rate_amt",
	},
	"TREAS_AVG_BONDS": {
		path:       "/v2/accounting/od/avg_interest_rates",
		filter:     "security_type_desc:eq:Treasury Bonds",
		dateField:  "record_date",
		valueField: "avg_interest_rate_amt",
	},
	"TREAS_AVG_TIPS": {
		path:       "/v2/accounting/od/avg_interest_rates",
		filter:     "security_type_desc:eq:Treasury Inflation-Protected Securities (TIPS)",
		dateField:  "record_date",
		valueField: "avg_interest_rate_amt",
	},
	"TREAS_AUCTION_2Y": {
		path:       "/v1/accounting/od/auctions_query",
		filter:     "security_term:eq:2-Year",
		dateField:  "auction_date",
		valueField: "high_investment_rate",
	},
	"TREAS_AUCTION_10Y": {
		path:       "/v1/accounting/od/auctions_query",
		filter:     "security_term:eq:10-Year",
		dateField:  "auction_date",
		valueField: "high_investment_rate",
	},
	"TREAS_AUCTION_30Y": {
		path:       "/v1/accounting/od/auctions_query",
		filter:     "security_term:eq:30-Year",
		dateField:  "auction_date",
		valueField: "high_investment_rate",
	},
	"TREAS_BID_COVER_10Y": {
		path:       "/v1/accounting/od/auctions_query",
		filter:     "security_term:eq:10-Year",
		dateField:  "auction_date",
		valueField: "bid_to_cover_ratio",
	},
}

// Treasury fetches observations from the U.S. Treasury Fiscal Data API.
// The API is public; no key is required.
type Treasury struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	pace    pacer
}

// NewTreasury constructs a Treasury Fiscal Data client.
func NewTreasury(opts Options, logger zerolog.Logger) *Treasury {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.fiscaldata.treasury.gov/services/api/fiscal_service"
	}

	return &Treasury{
		opts:    opts,
		logger:  logger.With().Str("component", "treasury_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		pace:    pacer{min: opts.MinInterval},
	}
}

// Fetch retrieves observations for one mapped Treasury series.
func (t *Treasury) Fetch(ctx context.Context, seriesID string, start time.Time, end *time.Time) ([]source.Observation, error) {
	mapping, ok := treasurySeries[seriesID]
	if !ok {
		return nil, source.NewPermanent(fmt.Sprintf("unknown treasury series %q", seriesID), nil)
	}

	return fetchWithRetry(ctx, func() ([]source.Observation, error) {
		return t.fetchOnce(ctx, mapping, start, end)
	})
}

func (t *Treasury) fetchOnce(ctx context.Context, mapping treasuryEndpoint, start time.Time, end *time.Time) ([]source.Observation, error) {
	if err := t.pace.wait(ctx); err != nil {
		return nil, err
	}

	filters := []string{
		mapping.filter,
		fmt.Sprintf("%s:gte:%s", mapping.dateField, start.Format(fredDateLayout)),
	}
	if end != nil {
		filters = append(filters, fmt.Sprintf("%s:lte:%s", mapping.dateField, end.Format(fredDateLayout)))
	}

	query := url.Values{}
	query.Set("filter", strings.Join(filters, ","))
	query.Set("fields", mapping.dateField+","+mapping.valueField)
	query.Set("sort", mapping.dateField)
	query.Set("page[size]", "10000")

	endpoint := t.baseURL + mapping.path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, source.NewPermanent("build treasury request", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(t.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, source.NewTransient("treasury request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.NewTransient("read treasury response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, source.NewRateLimited(fmt.Sprintf("treasury api rate limit (%d)", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return nil, source.NewTransient(fmt.Sprintf("treasury api error (%d)", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return nil, source.NewPermanent(fmt.Sprintf("treasury api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var decoded struct {
		Data []map[string]string `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, source.NewTransient("decode treasury response", err)
	}

	observations := make([]source.Observation, 0, len(decoded.Data))
	for _, row := range decoded.Data {
		rawDate, rawValue := row[mapping.dateField], row[mapping.valueField]
		if rawValue == "" || rawValue == "null" {
			continue
		}
		date, err := time.Parse(fredDateLayout, rawDate)
		if err != nil {
			continue
		}
		value, err := decimal.NewFromString(rawValue)
		if err != nil {
			continue
		}
		observations = append(observations, source.Observation{Date: date, Value: value})
	}

	sortByDate(observations)
	t.logger.Debug().Str("endpoint", mapping.path).Int("rows", len(observations)).Msg("treasury fetch complete")
	return observations, nil
}

var _ source.Adapter = (*Treasury)(nil)
