package app

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"macrowatch/internal/storage"
)

func historyRows(n int) []storage.ObservationRow {
	rows := make([]storage.ObservationRow, n)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = storage.ObservationRow{
			SeriesID: "DGS10",
			Date:     start.AddDate(0, 0, i),
			Value:    decimal.NewFromFloat(float64(i) / 100),
		}
	}
	return rows
}

func TestDownsampleHistory(t *testing.T) {
	rows := historyRows(1000)

	got := downsampleHistory(rows, 100)
	if len(got) != 100 {
		t.Fatalf("len = %d", len(got))
	}
	if !got[0].Date.Equal(rows[0].Date) {
		t.Fatalf("first point should be preserved, got %s", got[0].Date)
	}
	if !got[len(got)-1].Date.Equal(rows[len(rows)-1].Date) {
		t.Fatalf("last point should be preserved, got %s", got[len(got)-1].Date)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Date.After(got[i-1].Date) {
			t.Fatalf("dates out of order at %d", i)
		}
	}
}

func TestDownsampleHistoryNoopWhenSmall(t *testing.T) {
	rows := historyRows(10)
	if got := downsampleHistory(rows, 100); len(got) != 10 {
		t.Fatalf("len = %d", len(got))
	}
	if got := downsampleHistory(rows, 0); len(got) != 10 {
		t.Fatalf("max<=0 should keep all rows, got %d", len(got))
	}
}

func TestWriteHistoryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dgs10.csv")
	rows := historyRows(3)

	if err := writeHistoryCSV(path, rows); err != nil {
		t.Fatalf("writeHistoryCSV: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d", len(records))
	}
	header := records[0]
	if header[0] != "series_id" || header[1] != "observation_date" || header[2] != "value" {
		t.Fatalf("header = %v", header)
	}
	if records[1][0] != "DGS10" || records[1][1] != "2020-01-01" || records[1][2] != "0" {
		t.Fatalf("first row = %v", records[1])
	}
}
