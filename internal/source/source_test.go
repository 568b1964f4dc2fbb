package source

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseKnownSources(t *testing.T) {
	cases := map[string]Source{
		"FRED":     FRED,
		"fred":     FRED,
		" Bls ":    BLS,
		"treasury": Treasury,
		"CENSUS":   Census,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestParseUnknownSource(t *testing.T) {
	if _, err := Parse("EUROSTAT"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestRouterUnregisteredSource(t *testing.T) {
	router := NewRouter()
	if _, err := router.Adapter(FRED); err == nil {
		t.Fatal("expected error for unregistered source")
	}
}

func TestRouterFallbackMapping(t *testing.T) {
	router := NewRouter()
	if err := router.SetFallback(BLS, FRED); err != nil {
		t.Fatalf("SetFallback: %v", err)
	}

	alt, ok := router.Fallback(BLS)
	if !ok || alt != FRED {
		t.Fatalf("Fallback(BLS) = %s, %v; want FRED, true", alt, ok)
	}
	if _, ok := router.Fallback(FRED); ok {
		t.Fatal("FRED should have no fallback")
	}
}

func TestRouterRejectsSelfFallback(t *testing.T) {
	router := NewRouter()
	if err := router.SetFallback(BLS, BLS); err == nil {
		t.Fatal("expected error for self fallback")
	}
}

func TestErrorClassification(t *testing.T) {
	transient := NewTransient("connection reset", nil)
	if !IsTransient(transient) {
		t.Fatal("transient error not classified as transient")
	}
	if IsRateLimited(transient) {
		t.Fatal("plain transient error should not be rate limited")
	}

	limited := NewRateLimited("daily threshold reached", nil)
	if !IsTransient(limited) {
		t.Fatal("rate limited error should be transient")
	}
	if !IsRateLimited(limited) {
		t.Fatal("rate limited error not detected")
	}

	permanent := NewPermanent("series does not exist", nil)
	if !IsPermanent(permanent) {
		t.Fatal("permanent error not classified as permanent")
	}
	if IsTransient(permanent) {
		t.Fatal("permanent error should not be transient")
	}
}

func TestErrorClassificationThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("fetch FEDFUNDS: %w", NewRateLimited("quota", nil))
	if !IsRateLimited(wrapped) {
		t.Fatal("wrapped rate limit not detected")
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewTransient("request failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable via errors.Is")
	}
}
