package alerting

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"macrowatch/internal/storage"
)

// Handler delivers alerts through one notification channel.
type Handler interface {
	Name() string
	Enabled() bool
	SendAlert(ctx context.Context, alert Alert) error
	SendDigest(ctx context.Context, alerts []Alert, summary Summary) error
}

// Summary aggregates a digest batch by severity.
type Summary struct {
	Date          string
	CriticalCount int
	WarningCount  int
	InfoCount     int
	TotalCount    int
}

// Engine evaluates rules against run context and routes triggered alerts.
// In digest mode alerts are buffered until SendDigest; otherwise they are
// dispatched immediately. Handler and persistence failures are logged and do
// not interrupt the run that triggered them.
type Engine struct {
	rules      []*Rule
	handlers   []Handler
	store      storage.AlertStore
	digestMode bool
	logger     zerolog.Logger
	now        func() time.Time

	mu     sync.Mutex
	buffer []Alert
}

// NewEngine wires rules and handlers. The store may be nil when alert history
// persistence is unavailable.
func NewEngine(rules []*Rule, handlers []Handler, store storage.AlertStore, digestMode bool, logger zerolog.Logger) *Engine {
	return &Engine{
		rules:      rules,
		handlers:   handlers,
		store:      store,
		digestMode: digestMode,
		logger:     logger.With().Str("component", "alert_engine").Logger(),
		now:        time.Now,
	}
}

// CheckAndAlert evaluates every rule and dispatches or buffers each triggered
// alert. Returns the triggered alerts for callers that want to report them.
func (e *Engine) CheckAndAlert(ctx context.Context, c Context) []Alert {
	triggered := make([]Alert, 0)
	for _, rule := range e.rules {
		alert := rule.Evaluate(c)
		if alert == nil {
			continue
		}
		e.logger.Info().
			Str("rule", rule.Name).
			Str("severity", alert.Severity).
			Msg("alert rule triggered")
		triggered = append(triggered, *alert)
		e.Dispatch(ctx, *alert)
	}
	return triggered
}

// Dispatch persists one alert and either buffers it or sends it now.
func (e *Engine) Dispatch(ctx context.Context, alert Alert) {
	e.persist(ctx, alert)

	if e.digestMode {
		e.mu.Lock()
		e.buffer = append(e.buffer, alert)
		e.mu.Unlock()
		e.logger.Debug().Str("rule", alert.RuleName).Msg("alert buffered for digest")
		return
	}

	for _, handler := range e.handlers {
		if !handler.Enabled() {
			continue
		}
		if err := handler.SendAlert(ctx, alert); err != nil {
			e.logger.Error().Err(err).
				Str("handler", handler.Name()).
				Str("rule", alert.RuleName).
				Msg("handler failed to send alert")
		}
	}
}

// SendDigest flushes the buffer through every enabled handler. A no-op when
// the buffer is empty.
func (e *Engine) SendDigest(ctx context.Context) {
	e.mu.Lock()
	alerts := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	if len(alerts) == 0 {
		e.logger.Debug().Msg("no alerts to send in digest")
		return
	}

	summary := Summarize(alerts, e.now())
	for _, handler := range e.handlers {
		if !handler.Enabled() {
			continue
		}
		if err := handler.SendDigest(ctx, alerts, summary); err != nil {
			e.logger.Error().Err(err).
				Str("handler", handler.Name()).
				Msg("handler failed to send digest")
		}
	}
	e.logger.Info().Int("alerts", len(alerts)).Msg("digest sent")
}

// BufferedAlerts returns a copy of the pending digest buffer.
func (e *Engine) BufferedAlerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.buffer))
	copy(out, e.buffer)
	return out
}

// Summarize tallies a digest batch by severity.
func Summarize(alerts []Alert, at time.Time) Summary {
	summary := Summary{
		Date:       at.Format("2006-01-02"),
		TotalCount: len(alerts),
	}
	for _, alert := range alerts {
		switch alert.Severity {
		case "critical":
			summary.CriticalCount++
		case "warning":
			summary.WarningCount++
		default:
			summary.InfoCount++
		}
	}
	return summary
}

func (e *Engine) persist(ctx context.Context, alert Alert) {
	if e.store == nil {
		return
	}

	metadata, err := json.Marshal(alert.Metadata)
	if err != nil {
		e.logger.Error().Err(err).Str("rule", alert.RuleName).Msg("marshal alert metadata")
		metadata = nil
	}

	rec := storage.AlertRecord{
		AlertID:   uuid.NewString(),
		RuleName:  alert.RuleName,
		Severity:  alert.Severity,
		Details:   alert.Details,
		Timestamp: alert.Timestamp,
		Metadata:  metadata,
	}
	if err := e.store.InsertAlertRecord(ctx, rec); err != nil {
		e.logger.Error().Err(err).Str("rule", alert.RuleName).Msg("persist alert history")
	}
}
