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

const fredObservationsPath = "/series/observations"

const fredDateLayout = "2006-01-02"

// FRED fetches observations from the St. Louis Fed FRED API.
type FRED struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	pace    pacer
}

// NewFRED constructs a FRED client.
func NewFRED(opts Options, logger zerolog.Logger) *FRED {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stlouisfed.org/fred"
	}

	return &FRED{
		opts:    opts,
		logger:  logger.With().Str("component", "fred_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		pace:    pacer{min: opts.MinInterval},
	}
}

// Fetch retrieves observations for one FRED series within the window.
func (f *FRED) Fetch(ctx context.Context, seriesID string, start time.Time, end *time.Time) ([]source.Observation, error) {
	if f.opts.APIKey == "" {
		return nil, source.NewPermanent("fred api key not configured", nil)
	}
	if seriesID == "" {
		return nil, source.NewPermanent("fred series id is empty", nil)
	}

	return fetchWithRetry(ctx, func() ([]source.Observation, error) {
		return f.fetchOnce(ctx, seriesID, start, end)
	})
}

func (f *FRED) fetchOnce(ctx context.Context, seriesID string, start time.Time, end *time.Time) ([]source.Observation, error) {
	if err := f.pace.wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("series_id", seriesID)
	query.Set("api_key", f.opts.APIKey)
	query.Set("file_type", "json")
	query.Set("observation_start", start.Format(fredDateLayout))
	if end != nil {
		query.Set("observation_end", end.Format(fredDateLayout))
	}

	endpoint := f.baseURL + fredObservationsPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, source.NewPermanent("build fred request", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, source.NewTransient("fred request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.NewTransient("read fred response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, f.classifyHTTPError(resp.StatusCode, payload)
	}

	var decoded fredObservationsResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, source.NewTransient("decode fred response", err)
	}

	observations := make([]source.Observation, 0, len(decoded.Observations))
	for _, obs := range decoded.Observations {
		// FRED reports missing values as ".".
		if obs.Value == "." || obs.Value == "" {
			continue
		}
		date, err := time.Parse(fredDateLayout, obs.Date)
		if err != nil {
			f.logger.Warn().Str("series_id", seriesID).Str("date", obs.Date).Msg("skipping observation with unparseable date")
			continue
		}
		value, err := decimal.NewFromString(obs.Value)
		if err != nil {
			f.logger.Warn().Str("series_id", seriesID).Str("value", obs.Value).Msg("skipping observation with non-numeric value")
			continue
		}
		observations = append(observations, source.Observation{Date: date, Value: value})
	}

	sortByDate(observations)
	f.logger.Debug().Str("series_id", seriesID).Int("rows", len(observations)).Msg("fred fetch complete")
	return observations, nil
}

func (f *FRED) classifyHTTPError(status int, payload []byte) error {
	var apiErr struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}
	msg := strings.TrimSpace(string(payload))
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		msg = apiErr.ErrorMessage
	}

	switch {
	case status == http.StatusTooManyRequests:
		return source.NewRateLimited(fmt.Sprintf("fred api rate limit (%d): %s", status, msg), nil)
	case status >= 500:
		return source.NewTransient(fmt.Sprintf("fred api error (%d): %s", status, msg), nil)
	default:
		return source.NewPermanent(fmt.Sprintf("fred api error (%d): %s", status, msg), nil)
	}
}

type fredObservationsResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

var _ source.Adapter = (*FRED)(nil)
