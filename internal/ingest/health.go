package ingest

import (
	"context"
	"fmt"
)

// Health is the run health bundle exposed to the CLI and automation.
type Health struct {
	RunID           string         `json:"run_id"`
	Status          string         `json:"status"`
	Mode            string         `json:"mode"`
	RowsFetched     int64          `json:"rows_fetched"`
	RowsInserted    int64          `json:"rows_inserted"`
	DurationSeconds float64        `json:"duration_seconds"`
	ErrorMessage    *string        `json:"error_message"`
	DQCounts        map[string]int `json:"dq_counts"`
	DQTotal         int            `json:"dq_total"`
}

// HealthSummary loads the health bundle for a run. An empty runID resolves
// to the most recent run.
func (o *Orchestrator) HealthSummary(ctx context.Context, runID string) (*Health, error) {
	if runID == "" {
		latest, err := o.store.LatestRunID(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve latest run: %w", err)
		}
		if latest == "" {
			return nil, fmt.Errorf("no ingestion runs recorded")
		}
		runID = latest
	}

	rec, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	counts, err := o.store.CountFindings(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("count findings for run %s: %w", runID, err)
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	return &Health{
		RunID:           rec.RunID,
		Status:          rec.Status,
		Mode:            rec.Mode,
		RowsFetched:     rec.RowsFetched,
		RowsInserted:    rec.RowsWritten,
		DurationSeconds: rec.DurationSeconds,
		ErrorMessage:    rec.ErrorMessage,
		DQCounts:        counts,
		DQTotal:         total,
	}, nil
}
