package ingest

import (
	"fmt"
	"strings"
)

// Mode selects the fetch window of a run.
type Mode string

const (
	// ModeIncremental re-fetches the trailing revision window.
	ModeIncremental Mode = "incremental"
	// ModeBackfill fetches the full history window.
	ModeBackfill Mode = "backfill"
)

// ParseMode validates a raw mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeIncremental:
		return ModeIncremental, nil
	case ModeBackfill:
		return ModeBackfill, nil
	}
	return "", fmt.Errorf("unknown ingestion mode %q (expected incremental or backfill)", raw)
}

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

var statusRank = map[Status]int{
	StatusSuccess: 0,
	StatusPartial: 1,
	StatusFailed:  2,
}

// escalate returns the worse of two statuses. Status only ever moves toward
// failed, never back.
func escalate(current, next Status) Status {
	if statusRank[next] > statusRank[current] {
		return next
	}
	return current
}

// Failure records one scoped problem encountered during a run. The list is
// rendered to a single message only when the run record is written.
type Failure struct {
	Scope   string
	Message string
}

func renderFailures(failures []Failure) *string {
	if len(failures) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failures))
	for _, failure := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", failure.Scope, failure.Message))
	}
	message := strings.Join(parts, "; ")
	return &message
}
