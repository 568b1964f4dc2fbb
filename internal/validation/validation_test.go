package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"macrowatch/internal/catalog"
	"macrowatch/internal/source"
	"macrowatch/internal/storage"
)

type fakeReader struct {
	duplicates []storage.DuplicateKey
	latestDate map[string]*time.Time
	latestTwo  map[string]*storage.ValuePair

	duplicatesErr error
	latestDateErr error
}

func (f *fakeReader) QueryDuplicates(context.Context) ([]storage.DuplicateKey, error) {
	return f.duplicates, f.duplicatesErr
}

func (f *fakeReader) LatestObservationDate(_ context.Context, seriesID string) (*time.Time, error) {
	if f.latestDateErr != nil {
		return nil, f.latestDateErr
	}
	return f.latestDate[seriesID], nil
}

func (f *fakeReader) LatestTwo(_ context.Context, seriesID string) (*storage.ValuePair, error) {
	return f.latestTwo[seriesID], nil
}

func seriesDef(id, frequency string) catalog.SeriesDefinition {
	return catalog.SeriesDefinition{
		SeriesID:  id,
		Title:     id,
		Units:     "Percent",
		Frequency: frequency,
		Tier:      1,
		Source:    source.FRED,
	}
}

func freshReader(series ...catalog.SeriesDefinition) *fakeReader {
	now := time.Now()
	latest := make(map[string]*time.Time)
	for _, def := range series {
		d := now
		latest[def.SeriesID] = &d
	}
	return &fakeReader{latestDate: latest}
}

func findByCode(findings []Finding, code string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Code == code {
			out = append(out, f)
		}
	}
	return out
}

func TestBackfillMissingSeriesIsCritical(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("FEDFUNDS", "Monthly"), seriesDef("DGS10", "Daily")}
	stats := map[string]Stats{
		"FEDFUNDS": {RowsFetched: 10},
		"DGS10":    {RowsFetched: 0},
	}

	v := New(freshReader(series...))
	findings, err := v.RunChecks(context.Background(), "backfill", series, stats)
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}

	missing := findByCode(findings, "missing_series_data")
	if len(missing) != 1 {
		t.Fatalf("got %d missing_series_data findings, want 1", len(missing))
	}
	if missing[0].Severity != SeverityCritical {
		t.Fatalf("severity = %s, want critical", missing[0].Severity)
	}
	if missing[0].SeriesID != "DGS10" {
		t.Fatalf("series = %s, want DGS10", missing[0].SeriesID)
	}
}

func TestIncrementalNoNewRowsOnlyWhenTotalZero(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("FEDFUNDS", "Monthly"), seriesDef("DGS10", "Daily")}

	v := New(freshReader(series...))

	// One series fetched rows: no finding.
	findings, err := v.RunChecks(context.Background(), "incremental", series, map[string]Stats{
		"FEDFUNDS": {RowsFetched: 3},
	})
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}
	if got := findByCode(findings, "incremental_no_new_rows"); len(got) != 0 {
		t.Fatalf("unexpected incremental_no_new_rows finding: %v", got)
	}
	if got := findByCode(findings, "missing_series_data"); len(got) != 0 {
		t.Fatalf("incremental should not produce missing_series_data: %v", got)
	}

	// Total zero: one run-scoped warning.
	findings, err = v.RunChecks(context.Background(), "incremental", series, map[string]Stats{})
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}
	got := findByCode(findings, "incremental_no_new_rows")
	if len(got) != 1 {
		t.Fatalf("got %d incremental_no_new_rows findings, want 1", len(got))
	}
	if got[0].Severity != SeverityWarning || got[0].SeriesID != "" {
		t.Fatalf("unexpected finding: %+v", got[0])
	}
}

func TestDuplicateObservationsAreCritical(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("SERIES_A", "Monthly")}
	reader := freshReader(series...)
	reader.duplicates = []storage.DuplicateKey{{SeriesID: "SERIES_A", Count: 2}}

	v := New(reader)
	findings, err := v.RunChecks(context.Background(), "incremental", series, map[string]Stats{
		"SERIES_A": {RowsFetched: 1},
	})
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}

	got := findByCode(findings, "duplicate_observations")
	if len(got) != 1 {
		t.Fatalf("got %d duplicate findings, want 1", len(got))
	}
	if got[0].Severity != SeverityCritical || got[0].SeriesID != "SERIES_A" {
		t.Fatalf("unexpected finding: %+v", got[0])
	}
}

func TestFreshnessThresholdsByFrequency(t *testing.T) {
	cases := []struct {
		frequency string
		want      int
	}{
		{"Daily", 10},
		{"Weekly", 28},
		{"Monthly", 90},
		{"Quarterly", 200},
		{"Annual", 550},
		{"", 180},
		{"irregular", 180},
	}
	for _, tc := range cases {
		if got := freshnessThresholdDays(tc.frequency); got != tc.want {
			t.Errorf("freshnessThresholdDays(%q) = %d, want %d", tc.frequency, got, tc.want)
		}
	}
}

func TestStaleSeriesDetection(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("FEDFUNDS", "Monthly")}
	old := time.Now().AddDate(0, 0, -120)
	reader := &fakeReader{latestDate: map[string]*time.Time{"FEDFUNDS": &old}}

	v := New(reader)
	findings, err := v.RunChecks(context.Background(), "incremental", series, map[string]Stats{
		"FEDFUNDS": {RowsFetched: 1},
	})
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}

	got := findByCode(findings, "stale_series_data")
	if len(got) != 1 {
		t.Fatalf("got %d stale findings, want 1", len(got))
	}
	if got[0].Severity != SeverityWarning {
		t.Fatalf("severity = %s, want warning", got[0].Severity)
	}
}

func TestSeriesWithNoObservations(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("NEW_SERIES", "Monthly")}
	reader := &fakeReader{latestDate: map[string]*time.Time{}}

	v := New(reader)
	findings, err := v.RunChecks(context.Background(), "incremental", series, map[string]Stats{
		"NEW_SERIES": {RowsFetched: 1},
	})
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}

	if got := findByCode(findings, "series_has_no_observations"); len(got) != 1 {
		t.Fatalf("got %d no-observation findings, want 1", len(got))
	}
}

func TestRapidChangeDetected(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("SERIES_A", "Monthly")}
	previous := decimal.RequireFromString("1.0")
	reader := freshReader(series...)
	reader.latestTwo = map[string]*storage.ValuePair{
		"SERIES_A": {Latest: decimal.RequireFromString("2.5"), Previous: &previous},
	}

	v := New(reader)
	findings, err := v.RunChecks(context.Background(), "incremental", series, map[string]Stats{
		"SERIES_A": {RowsFetched: 1},
	})
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}

	got := findByCode(findings, "rapid_change_detected")
	if len(got) != 1 {
		t.Fatalf("got %d rapid change findings, want 1", len(got))
	}
	if got[0].Severity != SeverityWarning {
		t.Fatalf("severity = %s, want warning", got[0].Severity)
	}
}

func TestRapidChangeSkipsSmallBase(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("SERIES_A", "Monthly")}
	previous := decimal.RequireFromString("0.05")
	reader := freshReader(series...)
	reader.latestTwo = map[string]*storage.ValuePair{
		"SERIES_A": {Latest: decimal.RequireFromString("0.2"), Previous: &previous},
	}

	v := New(reader)
	findings, err := v.RunChecks(context.Background(), "incremental", series, map[string]Stats{
		"SERIES_A": {RowsFetched: 1},
	})
	if err != nil {
		t.Fatalf("RunChecks: %v", err)
	}

	if got := findByCode(findings, "rapid_change_detected"); len(got) != 0 {
		t.Fatalf("small base should be skipped, got %v", got)
	}
}

func TestReadErrorDoesNotStopOtherChecks(t *testing.T) {
	series := []catalog.SeriesDefinition{seriesDef("SERIES_A", "Monthly")}
	reader := freshReader(series...)
	reader.duplicatesErr = errors.New("connection refused")

	v := New(reader)
	findings, err := v.RunChecks(context.Background(), "backfill", series, map[string]Stats{})
	if err == nil {
		t.Fatal("expected joined error from duplicate check")
	}

	// The missing-series check still ran.
	if got := findByCode(findings, "missing_series_data"); len(got) != 1 {
		t.Fatalf("missing_series_data should still be produced, got %v", findings)
	}
}

func TestCountBySeverity(t *testing.T) {
	findings := []Finding{
		{Severity: SeverityCritical},
		{Severity: SeverityWarning},
		{Severity: SeverityWarning},
	}
	counts := CountBySeverity(findings)
	if counts[SeverityCritical] != 1 || counts[SeverityWarning] != 2 || counts[SeverityInfo] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	total := counts[SeverityCritical] + counts[SeverityWarning] + counts[SeverityInfo]
	if total != len(findings) {
		t.Fatalf("counts sum to %d, want %d", total, len(findings))
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(nil, 5); got != "No findings." {
		t.Fatalf("empty summary = %q", got)
	}

	findings := []Finding{
		{Code: "stale_series_data", SeriesID: "A"},
		{Code: "incremental_no_new_rows"},
		{Code: "stale_series_data", SeriesID: "B"},
	}
	got := Summarize(findings, 2)
	want := "stale_series_data(A), incremental_no_new_rows, +1 more"
	if got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
}
