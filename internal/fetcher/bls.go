package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"macrowatch/internal/source"
)

const blsTimeseriesPath = "/timeseries/data/"

// BLS fetches observations from the Bureau of Labor Statistics v2 API.
type BLS struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	pace    pacer
}

// NewBLS constructs a BLS client. An API key is optional but raises the
// provider's daily query quota.
func NewBLS(opts Options, logger zerolog.Logger) *BLS {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.bls.gov/publicAPI/v2"
	}

	return &BLS{
		opts:    opts,
		logger:  logger.With().Str("component", "bls_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		pace:    pacer{min: opts.MinInterval},
	}
}

// Fetch retrieves observations for one BLS series within the window.
func (b *BLS) Fetch(ctx context.Context, seriesID string, start time.Time, end *time.Time) ([]source.Observation, error) {
	if seriesID == "" {
		return nil, source.NewPermanent("bls series id is empty", nil)
	}

	return fetchWithRetry(ctx, func() ([]source.Observation, error) {
		return b.fetchOnce(ctx, seriesID, start, end)
	})
}

func (b *BLS) fetchOnce(ctx context.Context, seriesID string, start time.Time, end *time.Time) ([]source.Observation, error) {
	if err := b.pace.wait(ctx); err != nil {
		return nil, err
	}

	endYear := time.Now().UTC().Year()
	if end != nil {
		endYear = end.Year()
	}
	payload := blsRequest{
		SeriesID:  []string{seriesID},
		StartYear: strconv.Itoa(start.Year()),
		EndYear:   strconv.Itoa(endYear),
	}
	if b.opts.APIKey != "" {
		payload.RegistrationKey = b.opts.APIKey
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, source.NewPermanent("marshal bls request", err)
	}

	endpoint := b.baseURL + blsTimeseriesPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, source.NewPermanent("build bls request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ua := strings.TrimSpace(b.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, source.NewTransient("bls request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, source.NewTransient("read bls response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, source.NewRateLimited(fmt.Sprintf("bls api rate limit (%d)", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 500 {
		return nil, source.NewTransient(fmt.Sprintf("bls api error (%d)", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, source.NewPermanent(fmt.Sprintf("bls api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}

	var decoded blsResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, source.NewTransient("decode bls response", err)
	}

	if decoded.Status != "REQUEST_SUCCEEDED" {
		return nil, b.classifyAPIFailure(decoded)
	}

	if len(decoded.Results.Series) == 0 {
		return nil, nil
	}

	data := decoded.Results.Series[0].Data
	observations := make([]source.Observation, 0, len(data))
	for _, obs := range data {
		date, ok := parseBLSPeriod(obs.Year, obs.Period)
		if !ok {
			// M13/S03 style annual averages have no calendar slot.
			continue
		}
		value, err := decimal.NewFromString(obs.Value)
		if err != nil {
			b.logger.Warn().Str("series_id", seriesID).Str("value", obs.Value).Msg("skipping observation with non-numeric value")
			continue
		}
		observations = append(observations, source.Observation{Date: date, Value: value})
	}

	// Year-granular request; trim to the exact window. BLS returns newest
	// first, so restore chronological order too.
	sortByDate(observations)
	observations = withinWindow(observations, start, end)
	b.logger.Debug().Str("series_id", seriesID).Int("rows", len(observations)).Msg("bls fetch complete")
	return observations, nil
}

// classifyAPIFailure maps a BLS REQUEST_NOT_PROCESSED response to the error
// taxonomy. The daily-threshold quota message is the signal that triggers
// source fallback upstream, surfaced here as a structured rate-limit error so
// nothing above the adapter has to sniff message text.
func (b *BLS) classifyAPIFailure(decoded blsResponse) error {
	msg := "unknown error"
	if len(decoded.Message) > 0 {
		msg = decoded.Message[0]
	}
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "threshold"):
		return source.NewRateLimited("bls daily query threshold reached: "+msg, nil)
	case strings.Contains(lower, "not exist"), strings.Contains(lower, "invalid series"):
		return source.NewPermanent("bls series rejected: "+msg, nil)
	default:
		return source.NewTransient("bls request not processed: "+msg, nil)
	}
}

// parseBLSPeriod converts a (year, period) pair to the first day of the
// period. M01-M12 monthly, Q01-Q04 quarterly, S01/S02 semiannual, A01 annual.
func parseBLSPeriod(year, period string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil || len(period) < 2 {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(period[1:])
	if err != nil {
		return time.Time{}, false
	}

	var month int
	switch period[0] {
	case 'M':
		if n < 1 || n > 12 {
			return time.Time{}, false
		}
		month = n
	case 'Q':
		if n < 1 || n > 4 {
			return time.Time{}, false
		}
		month = (n-1)*3 + 1
	case 'S':
		if n < 1 || n > 2 {
			return time.Time{}, false
		}
		month = (n-1)*6 + 1
	case 'A':
		if n != 1 {
			return time.Time{}, false
		}
		month = 1
	default:
		return time.Time{}, false
	}

	return time.Date(y, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
}

type blsRequest struct {
	SeriesID        []string `json:"seriesid"`
	StartYear       string   `json:"startyear,omitempty"`
	EndYear         string   `json:"endyear,omitempty"`
	RegistrationKey string   `json:"registrationkey,omitempty"`
}

type blsResponse struct {
	Status  string   `json:"status"`
	Message []string `json:"message"`
	Results struct {
		Series []struct {
			SeriesID string `json:"seriesID"`
			Data     []struct {
				Year   string `json:"year"`
				Period string `json:"period"`
				Value  string `json:"value"`
			} `json:"data"`
		} `json:"series"`
	} `json:"Results"`
}

var _ source.Adapter = (*BLS)(nil)
