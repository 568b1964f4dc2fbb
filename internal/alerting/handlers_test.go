package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"macrowatch/internal/config"
)

func sampleAlert() Alert {
	return Alert{
		RuleName:    "ingestion_failed",
		Severity:    "critical",
		Description: "Ingestion run did not complete successfully",
		Timestamp:   time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC),
		Details:     "Ingestion run completed with status: failed",
	}
}

func TestConsoleHandlerWritesAlert(t *testing.T) {
	var buf bytes.Buffer
	handler := NewConsoleHandlerTo(true, &buf)

	if err := handler.SendAlert(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[CRITICAL] ingestion_failed") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "status: failed") {
		t.Fatalf("output missing details: %q", out)
	}
}

func TestTelegramHandlerSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	handler := NewTelegramHandler(true, "token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := handler.SendAlert(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id = %q", received["chat_id"])
	}
	if !strings.Contains(received["text"], "ingestion_failed") {
		t.Fatalf("text = %q", received["text"])
	}
}

func TestTelegramHandlerNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	handler := NewTelegramHandler(true, "token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := handler.SendAlert(context.Background(), sampleAlert()); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestEmailHandlerDisabledIsNoop(t *testing.T) {
	handler := NewEmailHandler(config.EmailConfig{Enabled: false}, zerolog.Nop())
	handler.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("disabled handler should not send")
		return nil
	}
	if err := handler.SendAlert(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("disabled handler should succeed: %v", err)
	}
}

func TestEmailHandlerRequiresRecipients(t *testing.T) {
	handler := NewEmailHandler(config.EmailConfig{Enabled: true, SMTPHost: "smtp.example.com", SMTPPort: 587}, zerolog.Nop())
	if err := handler.SendAlert(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected error when no recipients configured")
	}
}

func TestEmailHandlerBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	handler := NewEmailHandler(config.EmailConfig{
		Enabled:     true,
		SMTPHost:    "smtp.example.com",
		SMTPPort:    587,
		FromAddress: "macrowatch@example.com",
		ToAddresses: []string{"ops@example.com"},
	}, zerolog.Nop())
	handler.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := handler.SendDigest(context.Background(), []Alert{sampleAlert()}, Summary{Date: "2026-08-29", CriticalCount: 1, TotalCount: 1}); err != nil {
		t.Fatalf("SendDigest: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("addr = %s", gotAddr)
	}
	if gotFrom != "macrowatch@example.com" || len(gotTo) != 1 {
		t.Fatalf("from = %s, to = %v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "Subject: [macrowatch digest] 2026-08-29 - 1 alerts") {
		t.Fatalf("message = %q", body)
	}
	if !strings.Contains(body, "Critical: 1") {
		t.Fatalf("digest body missing summary: %q", body)
	}
}
