package alerting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"macrowatch/internal/storage"
)

type fakeHandler struct {
	enabled bool
	alerts  []Alert
	digests [][]Alert
	summary Summary
}

func (f *fakeHandler) Name() string  { return "fake" }
func (f *fakeHandler) Enabled() bool { return f.enabled }

func (f *fakeHandler) SendAlert(_ context.Context, alert Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeHandler) SendDigest(_ context.Context, alerts []Alert, summary Summary) error {
	f.digests = append(f.digests, alerts)
	f.summary = summary
	return nil
}

type fakeAlertStore struct {
	records []storage.AlertRecord
}

func (f *fakeAlertStore) InsertAlertRecord(_ context.Context, rec storage.AlertRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeAlertStore) ListRecentAlerts(context.Context, int) ([]storage.AlertRecord, error) {
	return f.records, nil
}

func failedRule(name string) *Rule {
	rule := NewRule(name, IngestionStatusCondition{Statuses: []string{"failed"}})
	rule.Severity = "critical"
	return rule
}

func TestEngineImmediateDispatch(t *testing.T) {
	handler := &fakeHandler{enabled: true}
	store := &fakeAlertStore{}
	engine := NewEngine([]*Rule{failedRule("r1")}, []Handler{handler}, store, false, zerolog.Nop())

	triggered := engine.CheckAndAlert(context.Background(), Context{RunID: "run-1", RunStatus: "failed"})
	if len(triggered) != 1 {
		t.Fatalf("triggered = %d, want 1", len(triggered))
	}
	if len(handler.alerts) != 1 {
		t.Fatalf("handler received %d alerts, want 1", len(handler.alerts))
	}
	if len(engine.BufferedAlerts()) != 0 {
		t.Fatal("immediate mode should not buffer")
	}
	if len(store.records) != 1 {
		t.Fatalf("alert history records = %d, want 1", len(store.records))
	}
	if store.records[0].RuleName != "r1" {
		t.Fatalf("persisted rule = %s", store.records[0].RuleName)
	}
}

func TestEngineDigestBuffering(t *testing.T) {
	handler := &fakeHandler{enabled: true}
	engine := NewEngine([]*Rule{failedRule("r1")}, []Handler{handler}, nil, true, zerolog.Nop())

	engine.CheckAndAlert(context.Background(), Context{RunStatus: "failed"})
	if len(handler.alerts) != 0 {
		t.Fatal("digest mode should not send immediately")
	}
	if len(engine.BufferedAlerts()) != 1 {
		t.Fatalf("buffer = %d, want 1", len(engine.BufferedAlerts()))
	}

	engine.SendDigest(context.Background())
	if len(handler.digests) != 1 {
		t.Fatalf("digests sent = %d, want 1", len(handler.digests))
	}
	if handler.summary.CriticalCount != 1 || handler.summary.TotalCount != 1 {
		t.Fatalf("summary = %+v", handler.summary)
	}
	if len(engine.BufferedAlerts()) != 0 {
		t.Fatal("buffer should be cleared after digest")
	}

	// Empty buffer: no more digests.
	engine.SendDigest(context.Background())
	if len(handler.digests) != 1 {
		t.Fatal("empty digest should not be sent")
	}
}

func TestEngineSkipsDisabledHandlers(t *testing.T) {
	enabled := &fakeHandler{enabled: true}
	disabled := &fakeHandler{enabled: false}
	engine := NewEngine([]*Rule{failedRule("r1")}, []Handler{enabled, disabled}, nil, false, zerolog.Nop())

	engine.CheckAndAlert(context.Background(), Context{RunStatus: "failed"})
	if len(enabled.alerts) != 1 {
		t.Fatalf("enabled handler alerts = %d, want 1", len(enabled.alerts))
	}
	if len(disabled.alerts) != 0 {
		t.Fatal("disabled handler should be skipped")
	}
}

func TestSummarizeCounts(t *testing.T) {
	at := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	alerts := []Alert{
		{Severity: "critical"},
		{Severity: "warning"},
		{Severity: "warning"},
		{Severity: "info"},
		{Severity: ""},
	}
	summary := Summarize(alerts, at)
	if summary.Date != "2026-08-29" {
		t.Fatalf("date = %s", summary.Date)
	}
	if summary.CriticalCount != 1 || summary.WarningCount != 2 || summary.InfoCount != 2 || summary.TotalCount != 5 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRenderDigestCapsPreviews(t *testing.T) {
	alerts := make([]Alert, 0, 14)
	for i := 0; i < 12; i++ {
		alerts = append(alerts, Alert{RuleName: "crit", Severity: "critical", Details: "d"})
	}
	for i := 0; i < 2; i++ {
		alerts = append(alerts, Alert{RuleName: "warn", Severity: "warning", Details: "d"})
	}

	text := renderDigestText(alerts, Summarize(alerts, time.Now()))
	if !strings.Contains(text, "... and 2 more") {
		t.Fatalf("digest should note truncated critical alerts:\n%s", text)
	}
	if strings.Count(text, "[CRITICAL] crit") != 10 {
		t.Fatalf("critical preview count = %d, want 10", strings.Count(text, "[CRITICAL] crit"))
	}
	if strings.Count(text, "[WARNING] warn") != 2 {
		t.Fatalf("warning preview count = %d, want 2", strings.Count(text, "[WARNING] warn"))
	}
}
