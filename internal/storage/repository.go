package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

//go:embed schema.sql
var schemaSQL string

const (
	upsertObservationSQL = `INSERT INTO observations (
        series_id,
        observation_date,
        value,
        load_timestamp
    ) VALUES (
        $1,$2,$3,now()
    )
    ON CONFLICT (series_id, observation_date) DO UPDATE
    SET value          = EXCLUDED.value,
        load_timestamp = now();`

	queryDuplicatesSQL = `SELECT series_id, COUNT(*) AS duplicate_count
    FROM observations
    GROUP BY series_id, observation_date
    HAVING COUNT(*) > 1
    LIMIT 5;`

	latestObservationDateSQL = `SELECT MAX(observation_date)
    FROM observations
    WHERE series_id = $1;`

	latestTwoSQL = `SELECT value
    FROM observations
    WHERE series_id = $1
    ORDER BY observation_date DESC
    LIMIT 2;`

	seriesHistorySQL = `SELECT series_id, observation_date, value
    FROM observations
    WHERE series_id = $1
      AND observation_date >= $2
      AND observation_date <= $3
    ORDER BY observation_date;`

	createRunSQL = `INSERT INTO ingestion_runs (
        run_id,
        run_timestamp,
        mode,
        series_ingested,
        rows_fetched,
        rows_written,
        duration_seconds,
        status,
        error_message
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	updateRunStatusSQL = `UPDATE ingestion_runs
    SET status = $2, error_message = $3
    WHERE run_id = $1;`

	getRunSQL = `SELECT
        run_id,
        run_timestamp,
        mode,
        series_ingested,
        rows_fetched,
        rows_written,
        duration_seconds,
        status,
        error_message
    FROM ingestion_runs
    WHERE run_id = $1;`

	latestRunIDSQL = `SELECT run_id
    FROM ingestion_runs
    ORDER BY run_timestamp DESC
    LIMIT 1;`

	listRecentRunsSQL = `SELECT
        run_id,
        run_timestamp,
        mode,
        series_ingested,
        rows_fetched,
        rows_written,
        duration_seconds,
        status,
        error_message
    FROM ingestion_runs
    ORDER BY run_timestamp DESC
    LIMIT $1;`

	insertFindingSQL = `INSERT INTO dq_findings (
        report_id,
        run_id,
        finding_timestamp,
        severity,
        code,
        series_id,
        message,
        metadata
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listFindingsSQL = `SELECT
        report_id,
        run_id,
        finding_timestamp,
        severity,
        code,
        series_id,
        message,
        metadata
    FROM dq_findings
    WHERE run_id = $1
      AND ($2 = '' OR severity = $2)
    ORDER BY finding_timestamp DESC
    LIMIT $3;`

	countFindingsSQL = `SELECT severity, COUNT(*)
    FROM dq_findings
    WHERE run_id = $1
    GROUP BY severity;`

	insertAlertSQL = `INSERT INTO alert_history (
        alert_id,
        rule_name,
        severity,
        details,
        alert_ts,
        metadata
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    );`

	listRecentAlertsSQL = `SELECT
        alert_id,
        rule_name,
        severity,
        details,
        alert_ts,
        metadata,
        created_at
    FROM alert_history
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore persists fetched observations via upsert-by-key.
type ObservationStore interface {
	UpsertObservations(ctx context.Context, rows []ObservationRow) (int64, error)
}

// RunStore persists and reads ingestion run records.
type RunStore interface {
	CreateRun(ctx context.Context, rec RunRecord) error
	UpdateRunStatus(ctx context.Context, runID, status string, errorMessage *string) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	LatestRunID(ctx context.Context) (string, error)
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// FindingStore persists and reads data-quality findings.
type FindingStore interface {
	InsertFindings(ctx context.Context, recs []FindingRecord) error
	ListFindings(ctx context.Context, runID, severity string, limit int) ([]FindingRecord, error)
	CountFindings(ctx context.Context, runID string) (map[string]int, error)
}

// QualityReader exposes the read queries the data-quality validator needs.
type QualityReader interface {
	QueryDuplicates(ctx context.Context) ([]DuplicateKey, error)
	LatestObservationDate(ctx context.Context, seriesID string) (*time.Time, error)
	LatestTwo(ctx context.Context, seriesID string) (*ValuePair, error)
}

// HistoryReader reads observation history windows for export.
type HistoryReader interface {
	SeriesHistory(ctx context.Context, seriesID string, from, to time.Time) ([]ObservationRow, error)
}

// AlertStore persists emitted alerts for auditing.
type AlertStore interface {
	InsertAlertRecord(ctx context.Context, rec AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers for run serialization.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to observations, runs, findings, and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables if they do not exist. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, schemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// UpsertObservations writes a batch of rows with upsert-by-key semantics and
// returns the number of rows applied.
func (s *Store) UpsertObservations(ctx context.Context, rows []ObservationRow) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(upsertObservationSQL, row.SeriesID, row.Date, row.Value.String())
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	var written int64
	for range rows {
		if _, execErr := results.Exec(); execErr != nil {
			return written, fmt.Errorf("upsert observations: %w", execErr)
		}
		written++
	}
	return written, nil
}

// QueryDuplicates reports (series_id, date) keys stored more than once.
func (s *Store) QueryDuplicates(ctx context.Context) ([]DuplicateKey, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, queryDuplicatesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("query duplicates: %w", queryErr)
	}
	defer rows.Close()

	duplicates := make([]DuplicateKey, 0)
	for rows.Next() {
		var dup DuplicateKey
		if err := rows.Scan(&dup.SeriesID, &dup.Count); err != nil {
			return nil, err
		}
		duplicates = append(duplicates, dup)
	}
	return duplicates, rows.Err()
}

// LatestObservationDate returns the most recent observation date of a series,
// or nil when the series has no observations.
func (s *Store) LatestObservationDate(ctx context.Context, seriesID string) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var latest sql.NullTime
	if scanErr := pool.QueryRow(ctx, latestObservationDateSQL, seriesID).Scan(&latest); scanErr != nil {
		return nil, fmt.Errorf("latest observation date: %w", scanErr)
	}
	if !latest.Valid {
		return nil, nil
	}
	value := latest.Time
	return &value, nil
}

// LatestTwo returns the most recent two values of a series, newest first.
// Returns nil when the series has no observations.
func (s *Store) LatestTwo(ctx context.Context, seriesID string) (*ValuePair, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestTwoSQL, seriesID)
	if queryErr != nil {
		return nil, fmt.Errorf("latest two values: %w", queryErr)
	}
	defer rows.Close()

	values := make([]decimal.Decimal, 0, 2)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		value, convErr := decimal.NewFromString(raw)
		if convErr != nil {
			return nil, fmt.Errorf("parse observation value: %w", convErr)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return nil, nil
	}
	pair := &ValuePair{Latest: values[0]}
	if len(values) > 1 {
		previous := values[1]
		pair.Previous = &previous
	}
	return pair, nil
}

// SeriesHistory lists a series' observations within a date window.
func (s *Store) SeriesHistory(ctx context.Context, seriesID string, from, to time.Time) ([]ObservationRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, seriesHistorySQL, seriesID, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("series history: %w", queryErr)
	}
	defer rows.Close()

	history := make([]ObservationRow, 0)
	for rows.Next() {
		var (
			row ObservationRow
			raw string
		)
		if err := rows.Scan(&row.SeriesID, &row.Date, &raw); err != nil {
			return nil, err
		}
		value, convErr := decimal.NewFromString(raw)
		if convErr != nil {
			return nil, fmt.Errorf("parse observation value: %w", convErr)
		}
		row.Value = value
		history = append(history, row)
	}
	return history, rows.Err()
}

// CreateRun persists a finalized run record.
func (s *Store) CreateRun(ctx context.Context, rec RunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	ingested, err := json.Marshal(rec.SeriesIngested)
	if err != nil {
		return fmt.Errorf("marshal series list: %w", err)
	}

	var errMsg interface{}
	if rec.ErrorMessage != nil {
		errMsg = *rec.ErrorMessage
	}

	if _, execErr := pool.Exec(ctx, createRunSQL,
		rec.RunID,
		rec.Timestamp,
		rec.Mode,
		ingested,
		rec.RowsFetched,
		rec.RowsWritten,
		rec.DurationSeconds,
		rec.Status,
		errMsg,
	); execErr != nil {
		return fmt.Errorf("create run: %w", execErr)
	}
	return nil
}

// UpdateRunStatus patches a run's terminal status and error message.
func (s *Store) UpdateRunStatus(ctx context.Context, runID, status string, errorMessage *string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if errorMessage != nil {
		errMsg = *errorMessage
	}

	cmdTag, execErr := pool.Exec(ctx, updateRunStatusSQL, runID, status, errMsg)
	if execErr != nil {
		return fmt.Errorf("update run status: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// GetRun loads one run record, or nil when absent.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rec, scanErr := scanRun(pool.QueryRow(ctx, getRunSQL, runID))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, scanErr
	}
	return rec, nil
}

// LatestRunID returns the id of the most recent run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}

	var runID string
	if scanErr := pool.QueryRow(ctx, latestRunIDSQL).Scan(&runID); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("latest run id: %w", scanErr)
	}
	return runID, nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// InsertFindings persists a run's data-quality findings.
func (s *Store) InsertFindings(ctx context.Context, recs []FindingRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		var seriesID interface{}
		if rec.SeriesID != nil {
			seriesID = *rec.SeriesID
		}
		var metadata interface{}
		if len(rec.Metadata) > 0 {
			metadata = []byte(rec.Metadata)
		}
		batch.Queue(insertFindingSQL,
			rec.ReportID,
			rec.RunID,
			rec.Timestamp,
			rec.Severity,
			rec.Code,
			seriesID,
			rec.Message,
			metadata,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range recs {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert findings: %w", execErr)
		}
	}
	return nil
}

// ListFindings lists a run's findings, optionally filtered by severity.
func (s *Store) ListFindings(ctx context.Context, runID, severity string, limit int) ([]FindingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFindingsSQL, runID, severity, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list findings: %w", queryErr)
	}
	defer rows.Close()

	findings := make([]FindingRecord, 0, limit)
	for rows.Next() {
		var (
			rec      FindingRecord
			seriesID sql.NullString
			metadata []byte
		)
		if err := rows.Scan(
			&rec.ReportID,
			&rec.RunID,
			&rec.Timestamp,
			&rec.Severity,
			&rec.Code,
			&seriesID,
			&rec.Message,
			&metadata,
		); err != nil {
			return nil, err
		}
		if seriesID.Valid {
			value := seriesID.String
			rec.SeriesID = &value
		}
		if len(metadata) > 0 {
			rec.Metadata = json.RawMessage(metadata)
		}
		findings = append(findings, rec)
	}
	return findings, rows.Err()
}

// CountFindings returns the per-severity finding counts for a run.
func (s *Store) CountFindings(ctx context.Context, runID string) (map[string]int, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, countFindingsSQL, runID)
	if queryErr != nil {
		return nil, fmt.Errorf("count findings: %w", queryErr)
	}
	defer rows.Close()

	counts := map[string]int{"info": 0, "warning": 0, "critical": 0}
	for rows.Next() {
		var (
			severity string
			count    int
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		counts[severity] = count
	}
	return counts, rows.Err()
}

// InsertAlertRecord persists one emitted alert.
func (s *Store) InsertAlertRecord(ctx context.Context, rec AlertRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var metadata interface{}
	if len(rec.Metadata) > 0 {
		metadata = []byte(rec.Metadata)
	}

	if _, execErr := pool.Exec(ctx, insertAlertSQL,
		rec.AlertID,
		rec.RuleName,
		rec.Severity,
		rec.Details,
		rec.Timestamp,
		metadata,
	); execErr != nil {
		return fmt.Errorf("insert alert record: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec      AlertRecord
			metadata []byte
		)
		if err := rows.Scan(
			&rec.AlertID,
			&rec.RuleName,
			&rec.Severity,
			&rec.Details,
			&rec.Timestamp,
			&metadata,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			rec.Metadata = json.RawMessage(metadata)
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

func scanRun(row pgx.Row) (*RunRecord, error) {
	var (
		rec      RunRecord
		ingested []byte
		errMsg   sql.NullString
	)
	if err := row.Scan(
		&rec.RunID,
		&rec.Timestamp,
		&rec.Mode,
		&ingested,
		&rec.RowsFetched,
		&rec.RowsWritten,
		&rec.DurationSeconds,
		&rec.Status,
		&errMsg,
	); err != nil {
		return nil, err
	}

	if len(ingested) > 0 {
		if err := json.Unmarshal(ingested, &rec.SeriesIngested); err != nil {
			return nil, fmt.Errorf("parse series list: %w", err)
		}
	}
	if errMsg.Valid {
		msg := errMsg.String
		rec.ErrorMessage = &msg
	}
	return &rec, nil
}
