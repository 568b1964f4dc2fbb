package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"macrowatch/internal/ingest"
	"macrowatch/internal/validation"
)

// HealthOptions configure the health command.
type HealthOptions struct {
	RunID          string
	JSONPath       string
	FailOnStatus   bool
	FailOnCritical bool
	FailOnWarning  bool
}

// Health prints the health summary of a run and applies the fail-on gates
// for CI-style automation.
func (a *App) Health(ctx context.Context, opts HealthOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cat, err := a.loadCatalog()
	if err != nil {
		return err
	}
	orchestrator, err := a.newOrchestrator(cat, store, nil)
	if err != nil {
		return err
	}

	runID := opts.RunID
	if strings.EqualFold(runID, "latest") {
		runID = ""
	}
	health, err := orchestrator.HealthSummary(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run Health: run_id=%s status=%s mode=%s rows_fetched=%d duration=%.2fs\n",
		health.RunID, health.Status, health.Mode, health.RowsFetched, health.DurationSeconds)
	fmt.Printf("DQ Counts: critical=%d warning=%d info=%d\n",
		health.DQCounts[string(validation.SeverityCritical)],
		health.DQCounts[string(validation.SeverityWarning)],
		health.DQCounts[string(validation.SeverityInfo)])
	if health.ErrorMessage != nil {
		fmt.Printf("Run Error: %s\n", *health.ErrorMessage)
	}

	if opts.JSONPath != "" {
		if err := writeHealthJSON(opts.JSONPath, health); err != nil {
			return err
		}
		fmt.Printf("Wrote health summary JSON: %s\n", opts.JSONPath)
	}

	var failures []string
	if opts.FailOnStatus && health.Status != string(ingest.StatusSuccess) {
		failures = append(failures, fmt.Sprintf("status=%s", health.Status))
	}
	if opts.FailOnCritical && health.DQCounts[string(validation.SeverityCritical)] > 0 {
		failures = append(failures, fmt.Sprintf("critical_findings=%d", health.DQCounts[string(validation.SeverityCritical)]))
	}
	if opts.FailOnWarning && health.DQCounts[string(validation.SeverityWarning)] > 0 {
		failures = append(failures, fmt.Sprintf("warning_findings=%d", health.DQCounts[string(validation.SeverityWarning)]))
	}
	if len(failures) > 0 {
		return fmt.Errorf("health check failed: %s", strings.Join(failures, ", "))
	}
	return nil
}

func writeHealthJSON(path string, health *ingest.Health) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(health, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
