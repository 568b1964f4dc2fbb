package fetcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"macrowatch/internal/source"
)

// Options parameterise a provider client.
type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MinInterval time.Duration
	UserAgent   string
}

const (
	defaultTimeout = 15 * time.Second
	retryAttempts  = 3
	retryBaseDelay = 500 * time.Millisecond
)

// pacer enforces a minimum interval between requests to one provider. It is
// the only mutable state an adapter carries, which is why adapters are built
// once per source and shared across a run.
type pacer struct {
	mu   sync.Mutex
	last time.Time
	min  time.Duration
}

func (p *pacer) wait(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	var delay time.Duration
	if p.min > 0 && !p.last.IsZero() {
		if next := p.last.Add(p.min); now.Before(next) {
			delay = next.Sub(now)
		}
	}
	p.last = now.Add(delay)
	p.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fetchWithRetry runs fn up to retryAttempts times with exponential backoff.
// Permanent failures surface immediately since retrying cannot fix them.
// Quota failures also surface immediately so the caller can re-route to a
// fallback source instead of burning the retry budget.
func fetchWithRetry(ctx context.Context, fn func() ([]source.Observation, error)) ([]source.Observation, error) {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		obs, err := fn()
		if err == nil {
			return obs, nil
		}
		lastErr = err

		if !source.IsTransient(err) || source.IsRateLimited(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func sortByDate(obs []source.Observation) {
	sort.Slice(obs, func(i, j int) bool {
		return obs[i].Date.Before(obs[j].Date)
	})
}

// withinWindow filters observations to [start, end], end inclusive when set.
func withinWindow(obs []source.Observation, start time.Time, end *time.Time) []source.Observation {
	out := obs[:0]
	for _, o := range obs {
		if o.Date.Before(start) {
			continue
		}
		if end != nil && o.Date.After(*end) {
			continue
		}
		out = append(out, o)
	}
	return out
}
