package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies a statistical agency providing series data.
type Source string

const (
	FRED     Source = "FRED"
	BLS      Source = "BLS"
	Treasury Source = "TREASURY"
	Census   Source = "CENSUS"
)

// Known lists every supported source.
func Known() []Source {
	return []Source{FRED, BLS, Treasury, Census}
}

// Parse normalises a source name, rejecting unknown values.
func Parse(raw string) (Source, error) {
	s := Source(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case FRED, BLS, Treasury, Census:
		return s, nil
	}
	return "", fmt.Errorf("unknown data source %q (supported: FRED, BLS, TREASURY, CENSUS)", raw)
}

func (s Source) String() string {
	return string(s)
}

// Observation is one dated value returned by an adapter, keyed later by the
// catalog series id.
type Observation struct {
	Date  time.Time
	Value decimal.Decimal
}
