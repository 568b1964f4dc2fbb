// Package ingest orchestrates multi-source ingestion runs: fetch windows,
// per-series upserts, run accounting, data-quality validation, and alert
// evaluation.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"macrowatch/internal/alerting"
	"macrowatch/internal/catalog"
	"macrowatch/internal/source"
	"macrowatch/internal/storage"
	"macrowatch/internal/validation"
)

// Store is the persistence surface a run needs.
type Store interface {
	UpsertObservations(ctx context.Context, rows []storage.ObservationRow) (int64, error)
	CreateRun(ctx context.Context, rec storage.RunRecord) error
	UpdateRunStatus(ctx context.Context, runID, status string, errorMessage *string) error
	GetRun(ctx context.Context, runID string) (*storage.RunRecord, error)
	LatestRunID(ctx context.Context) (string, error)
	InsertFindings(ctx context.Context, recs []storage.FindingRecord) error
	CountFindings(ctx context.Context, runID string) (map[string]int, error)
}

// Validator runs the post-ingestion data-quality checks.
type Validator interface {
	RunChecks(ctx context.Context, mode string, series []catalog.SeriesDefinition, stats map[string]validation.Stats) ([]validation.Finding, error)
}

// Alerter evaluates alert rules against the finished run.
type Alerter interface {
	CheckAndAlert(ctx context.Context, c alerting.Context) []alerting.Alert
}

// Orchestrator drives one ingestion run end to end.
type Orchestrator struct {
	catalog   *catalog.Catalog
	router    *source.Router
	store     Store
	validator Validator
	alerter   Alerter
	logger    zerolog.Logger
	now       func() time.Time
}

// NewOrchestrator wires the run dependencies. The alerter may be nil when
// alerting is disabled.
func NewOrchestrator(cat *catalog.Catalog, router *source.Router, store Store, validator Validator, alerter Alerter, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		catalog:   cat,
		router:    router,
		store:     store,
		validator: validator,
		alerter:   alerter,
		logger:    logger.With().Str("component", "ingest").Logger(),
		now:       time.Now,
	}
}

// windowStart computes the fetch window start for a mode. Incremental
// re-fetches the trailing 60 days to pick up revisions; backfill covers ten
// years of history.
func (o *Orchestrator) windowStart(mode Mode) time.Time {
	if mode == ModeBackfill {
		return o.now().AddDate(-10, 0, 0)
	}
	return o.now().AddDate(0, 0, -60)
}

// Run executes one ingestion run and returns its id. Per-series failures
// never abort the run; they accumulate into the run record and drive the
// terminal status. The returned error covers only failures to persist the
// run record itself.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (string, error) {
	runID := uuid.NewString()
	startedAt := o.now()
	windowStart := o.windowStart(mode)

	o.logger.Info().
		Str("run_id", runID).
		Str("mode", string(mode)).
		Time("window_start", windowStart).
		Int("series", o.catalog.Len()).
		Msg("starting ingestion run")

	status := StatusSuccess
	var (
		failures       []Failure
		seriesIngested []string
		rowsFetched    int64
		rowsWritten    int64
		failedSeries   int
	)
	stats := make(map[string]validation.Stats, o.catalog.Len())
	rerouted := make(map[source.Source]source.Source)

	for _, src := range o.catalog.Sources() {
		defs := o.catalog.BySource(src)

		adapter, err := o.router.Adapter(src)
		if err != nil {
			o.logger.Error().Err(err).Str("source", string(src)).Msg("source unavailable, skipping group")
			status = escalate(status, StatusPartial)
			failures = append(failures, Failure{Scope: "source " + string(src), Message: err.Error()})
			failedSeries += len(defs)
			continue
		}

		for _, def := range defs {
			observations, escalates, fetchErr := o.fetchSeries(ctx, adapter, src, def, windowStart, rerouted)
			if fetchErr != nil {
				failures = append(failures, Failure{Scope: def.SeriesID, Message: fetchErr.Error()})
				failedSeries++
				stats[def.SeriesID] = validation.Stats{}
				if escalates {
					status = escalate(status, StatusPartial)
				}
				continue
			}

			written, upsertErr := o.store.UpsertObservations(ctx, toRows(def.SeriesID, observations))
			if upsertErr != nil {
				o.logger.Error().Err(upsertErr).Str("series_id", def.SeriesID).Msg("upsert failed")
				status = escalate(status, StatusPartial)
				failures = append(failures, Failure{Scope: def.SeriesID, Message: upsertErr.Error()})
				failedSeries++
				stats[def.SeriesID] = validation.Stats{}
				continue
			}

			stats[def.SeriesID] = validation.Stats{
				RowsFetched: int64(len(observations)),
				RowsWritten: written,
			}
			rowsFetched += int64(len(observations))
			rowsWritten += written
			seriesIngested = append(seriesIngested, def.SeriesID)
			o.logger.Info().
				Str("series_id", def.SeriesID).
				Int("rows", len(observations)).
				Msg("series processed")
		}
	}

	findings, validationErr := o.validator.RunChecks(ctx, string(mode), o.catalog.All(), stats)
	if validationErr != nil {
		o.logger.Error().Err(validationErr).Msg("data-quality checks incomplete")
		status = escalate(status, StatusPartial)
		failures = append(failures, Failure{Scope: "validation", Message: validationErr.Error()})
	}

	counts := validation.CountBySeverity(findings)
	if counts[validation.SeverityCritical] > 0 {
		status = escalate(status, StatusFailed)
	}

	errorMessage := renderFailures(failures)
	rec := storage.RunRecord{
		RunID:           runID,
		Timestamp:       startedAt,
		Mode:            string(mode),
		SeriesIngested:  seriesIngested,
		RowsFetched:     rowsFetched,
		RowsWritten:     rowsWritten,
		DurationSeconds: o.now().Sub(startedAt).Seconds(),
		Status:          string(status),
		ErrorMessage:    errorMessage,
	}
	if err := o.store.CreateRun(ctx, rec); err != nil {
		return runID, fmt.Errorf("persist run record: %w", err)
	}

	if err := o.store.InsertFindings(ctx, toFindingRecords(runID, findings, o.now())); err != nil {
		o.logger.Error().Err(err).Str("run_id", runID).Msg("persist findings failed")
		if status == StatusSuccess {
			status = StatusPartial
			failures = append(failures, Failure{
				Scope:   "findings",
				Message: fmt.Sprintf("failed to persist data-quality findings: %v", err),
			})
			if patchErr := o.store.UpdateRunStatus(ctx, runID, string(status), renderFailures(failures)); patchErr != nil {
				o.logger.Error().Err(patchErr).Str("run_id", runID).Msg("downgrade run status failed")
			}
		}
	}

	o.logger.Info().
		Str("run_id", runID).
		Str("status", string(status)).
		Int64("rows_fetched", rowsFetched).
		Int64("rows_written", rowsWritten).
		Int("findings", len(findings)).
		Str("findings_summary", validation.Summarize(findings, 5)).
		Msg("ingestion run complete")

	if o.alerter != nil {
		o.alerter.CheckAndAlert(ctx, alerting.Context{
			RunID:         runID,
			RunStatus:     string(status),
			Findings:      findings,
			StaleSeries:   seriesWithCode(findings, "stale_series_data"),
			MissingSeries: seriesWithCode(findings, "series_has_no_observations", "missing_series_data"),
			TotalSeries:   o.catalog.Len(),
			FailedSeries:  failedSeries,
		})
	}

	return runID, nil
}

// fetchSeries fetches one series, re-routing to the configured fallback
// source when the primary reports a rate limit. Once a source is rate
// limited its remaining series go straight to the fallback for the rest of
// the run. A failed fallback leaves the series with zero rows for the
// validator to flag, without escalating the run status; every other failure
// escalates.
func (o *Orchestrator) fetchSeries(
	ctx context.Context,
	adapter source.Adapter,
	src source.Source,
	def catalog.SeriesDefinition,
	windowStart time.Time,
	rerouted map[source.Source]source.Source,
) ([]source.Observation, bool, error) {
	if fallbackSrc, ok := rerouted[src]; ok {
		return o.fetchFallback(ctx, fallbackSrc, def, windowStart, nil)
	}

	observations, err := adapter.Fetch(ctx, def.RequestID(), windowStart, nil)
	if err == nil {
		return observations, false, nil
	}
	if !source.IsRateLimited(err) {
		o.logger.Error().Err(err).Str("series_id", def.SeriesID).Msg("fetch failed")
		return nil, true, err
	}

	fallbackSrc, ok := o.router.Fallback(src)
	if !ok {
		o.logger.Error().Err(err).Str("series_id", def.SeriesID).Msg("rate limited, no fallback configured")
		return nil, true, err
	}
	rerouted[src] = fallbackSrc

	o.logger.Warn().
		Str("series_id", def.SeriesID).
		Str("source", string(src)).
		Str("fallback", string(fallbackSrc)).
		Str("fallback_series_id", def.FallbackRequestID()).
		Msg("rate limited, re-routing remainder of run to fallback source")

	return o.fetchFallback(ctx, fallbackSrc, def, windowStart, err)
}

func (o *Orchestrator) fetchFallback(
	ctx context.Context,
	fallbackSrc source.Source,
	def catalog.SeriesDefinition,
	windowStart time.Time,
	primaryErr error,
) ([]source.Observation, bool, error) {
	fallbackAdapter, adapterErr := o.router.Adapter(fallbackSrc)
	if adapterErr != nil {
		o.logger.Error().Err(adapterErr).
			Str("series_id", def.SeriesID).
			Str("fallback", string(fallbackSrc)).
			Msg("fallback source unavailable")
		if primaryErr != nil {
			return nil, true, primaryErr
		}
		return nil, true, adapterErr
	}

	observations, fallbackErr := fallbackAdapter.Fetch(ctx, def.FallbackRequestID(), windowStart, nil)
	if fallbackErr != nil {
		o.logger.Error().Err(fallbackErr).
			Str("series_id", def.SeriesID).
			Str("fallback", string(fallbackSrc)).
			Msg("fallback fetch failed")
		if primaryErr != nil {
			return nil, false, fmt.Errorf("fallback via %s: %v (primary: %v)", fallbackSrc, fallbackErr, primaryErr)
		}
		return nil, false, fmt.Errorf("fallback via %s: %v", fallbackSrc, fallbackErr)
	}
	return observations, false, nil
}

func toRows(seriesID string, observations []source.Observation) []storage.ObservationRow {
	rows := make([]storage.ObservationRow, 0, len(observations))
	for _, obs := range observations {
		rows = append(rows, storage.ObservationRow{
			SeriesID: seriesID,
			Date:     obs.Date,
			Value:    obs.Value,
		})
	}
	return rows
}

func toFindingRecords(runID string, findings []validation.Finding, at time.Time) []storage.FindingRecord {
	recs := make([]storage.FindingRecord, 0, len(findings))
	for _, finding := range findings {
		var metadata json.RawMessage
		if len(finding.Metadata) > 0 {
			if encoded, err := json.Marshal(finding.Metadata); err == nil {
				metadata = encoded
			}
		}
		var seriesID *string
		if finding.SeriesID != "" {
			id := finding.SeriesID
			seriesID = &id
		}
		recs = append(recs, storage.FindingRecord{
			ReportID:  uuid.NewString(),
			RunID:     runID,
			Timestamp: at,
			Severity:  string(finding.Severity),
			Code:      finding.Code,
			SeriesID:  seriesID,
			Message:   finding.Message,
			Metadata:  metadata,
		})
	}
	return recs
}

func seriesWithCode(findings []validation.Finding, codes ...string) []string {
	seen := make(map[string]bool)
	matched := make([]string, 0)
	for _, finding := range findings {
		if finding.SeriesID == "" {
			continue
		}
		for _, code := range codes {
			if finding.Code == code && !seen[finding.SeriesID] {
				seen[finding.SeriesID] = true
				matched = append(matched, finding.SeriesID)
			}
		}
	}
	return matched
}
