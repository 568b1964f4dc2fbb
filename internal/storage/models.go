package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ObservationRow is one (series, date) -> value fact. The pair
// (SeriesID, Date) is the storage key; re-writing it replaces the value.
type ObservationRow struct {
	SeriesID string
	Date     time.Time
	Value    decimal.Decimal
}

// RunRecord captures one ingestion execution.
type RunRecord struct {
	RunID           string
	Timestamp       time.Time
	Mode            string
	SeriesIngested  []string
	RowsFetched     int64
	RowsWritten     int64
	DurationSeconds float64
	Status          string
	ErrorMessage    *string
}

// FindingRecord is a persisted data-quality finding for audit.
type FindingRecord struct {
	ReportID  string
	RunID     string
	Timestamp time.Time
	Severity  string
	Code      string
	SeriesID  *string
	Message   string
	Metadata  json.RawMessage
}

// AlertRecord captures an emitted alert for history tracking.
type AlertRecord struct {
	AlertID   string
	RuleName  string
	Severity  string
	Details   string
	Timestamp time.Time
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// DuplicateKey reports a series holding more than one row for a single
// observation date.
type DuplicateKey struct {
	SeriesID string
	Count    int64
}

// ValuePair holds the two most recent observation values of a series.
// Previous is nil when the series has a single observation.
type ValuePair struct {
	Latest   decimal.Decimal
	Previous *decimal.Decimal
}
