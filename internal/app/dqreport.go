package app

import (
	"context"
	"fmt"
	"strings"

	"macrowatch/internal/validation"
)

// DQReportOptions configure the dq-report command.
type DQReportOptions struct {
	RunID    string
	Severity string
	Limit    int
}

// DQReport prints the data-quality findings of a run.
func (a *App) DQReport(ctx context.Context, opts DQReportOptions) error {
	severity := strings.ToLower(opts.Severity)
	switch severity {
	case "", "all":
		severity = ""
	case string(validation.SeverityInfo), string(validation.SeverityWarning), string(validation.SeverityCritical):
	default:
		return fmt.Errorf("invalid severity %q (use all, info, warning, or critical)", opts.Severity)
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	runID := opts.RunID
	if runID == "" || strings.EqualFold(runID, "latest") {
		latest, err := store.LatestRunID(ctx)
		if err != nil {
			return err
		}
		if latest == "" {
			return fmt.Errorf("no ingestion runs recorded")
		}
		runID = latest
	}

	rec, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("run %s not found", runID)
	}

	counts, err := store.CountFindings(ctx, runID)
	if err != nil {
		return err
	}
	findings, err := store.ListFindings(ctx, runID, severity, opts.Limit)
	if err != nil {
		return err
	}

	fmt.Printf("Run Summary: run_id=%s mode=%s status=%s rows_fetched=%d duration=%.2fs\n",
		rec.RunID, rec.Mode, rec.Status, rec.RowsFetched, rec.DurationSeconds)
	fmt.Printf("DQ Counts: critical=%d warning=%d info=%d\n",
		counts["critical"], counts["warning"], counts["info"])
	if rec.ErrorMessage != nil {
		fmt.Printf("Run Error: %s\n", *rec.ErrorMessage)
	}

	if len(findings) == 0 {
		fmt.Println("No DQ findings for this selection.")
		return nil
	}

	fmt.Println("Findings:")
	for _, finding := range findings {
		seriesLabel := "-"
		if finding.SeriesID != nil {
			seriesLabel = *finding.SeriesID
		}
		line := fmt.Sprintf("- [%s] %s series=%s: %s", finding.Severity, finding.Code, seriesLabel, finding.Message)
		if len(finding.Metadata) > 0 {
			line += fmt.Sprintf(" | metadata=%s", string(finding.Metadata))
		}
		fmt.Println(line)
	}
	return nil
}
