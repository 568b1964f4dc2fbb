// Package alerting evaluates configured rules after each ingestion run and
// dispatches triggered alerts through the enabled notification handlers.
package alerting

import (
	"fmt"
	"strings"

	"macrowatch/internal/validation"
)

// Context is the run snapshot rules are evaluated against.
type Context struct {
	RunID         string
	RunStatus     string
	Findings      []validation.Finding
	StaleSeries   []string
	MissingSeries []string
	TotalSeries   int
	FailedSeries  int
}

// Condition is the closed set of rule trigger conditions. Each variant keeps
// only the parameters its evaluation uses.
type Condition interface {
	evaluate(c Context) (Outcome, bool)
	isCondition()
}

// Outcome carries the rendered trigger details of a fired condition.
type Outcome struct {
	Details  string
	Metadata map[string]any
}

// IngestionStatusCondition fires when the run status matches one of the
// configured statuses.
type IngestionStatusCondition struct {
	Statuses []string
}

func (IngestionStatusCondition) isCondition() {}

func (cond IngestionStatusCondition) evaluate(c Context) (Outcome, bool) {
	for _, status := range cond.Statuses {
		if c.RunStatus == status {
			return Outcome{
				Details:  fmt.Sprintf("Ingestion run completed with status: %s", c.RunStatus),
				Metadata: map[string]any{"run_id": c.RunID, "status": c.RunStatus},
			}, true
		}
	}
	return Outcome{}, false
}

// DQCountCondition fires when the number of findings at a severity crosses a
// threshold.
type DQCountCondition struct {
	Severity  validation.Severity
	Operator  string
	Threshold int
}

func (DQCountCondition) isCondition() {}

func (cond DQCountCondition) evaluate(c Context) (Outcome, bool) {
	count := 0
	for _, finding := range c.Findings {
		if finding.Severity == cond.Severity {
			count++
		}
	}

	triggered := false
	switch cond.Operator {
	case ">=":
		triggered = count >= cond.Threshold
	case ">":
		triggered = count > cond.Threshold
	case "=":
		triggered = count == cond.Threshold
	}
	if !triggered {
		return Outcome{}, false
	}

	return Outcome{
		Details: fmt.Sprintf("%d %s DQ findings detected (threshold: %d)", count, cond.Severity, cond.Threshold),
		Metadata: map[string]any{
			"count":     count,
			"severity":  string(cond.Severity),
			"threshold": cond.Threshold,
		},
	}, true
}

// DataFreshnessCondition fires when any series is stale past the age limit.
type DataFreshnessCondition struct {
	MaxAgeDays int
}

func (DataFreshnessCondition) isCondition() {}

func (cond DataFreshnessCondition) evaluate(c Context) (Outcome, bool) {
	if len(c.StaleSeries) == 0 {
		return Outcome{}, false
	}
	return Outcome{
		Details: fmt.Sprintf("%d series haven't been updated in %d days", len(c.StaleSeries), cond.MaxAgeDays),
		Metadata: map[string]any{
			"stale_count":  len(c.StaleSeries),
			"max_age_days": cond.MaxAgeDays,
			"series":       previewSeries(c.StaleSeries),
		},
	}, true
}

// MissingDataCondition fires when any series has no recent observations.
type MissingDataCondition struct {
	Days int
}

func (MissingDataCondition) isCondition() {}

func (cond MissingDataCondition) evaluate(c Context) (Outcome, bool) {
	if len(c.MissingSeries) == 0 {
		return Outcome{}, false
	}
	return Outcome{
		Details: fmt.Sprintf("%d series have no data in the last %d days", len(c.MissingSeries), cond.Days),
		Metadata: map[string]any{
			"missing_count": len(c.MissingSeries),
			"days":          cond.Days,
			"series":        previewSeries(c.MissingSeries),
		},
	}, true
}

// ErrorRateCondition fires when the failed/total series ratio crosses a
// threshold.
type ErrorRateCondition struct {
	Operator  string
	Threshold float64
}

func (ErrorRateCondition) isCondition() {}

func (cond ErrorRateCondition) evaluate(c Context) (Outcome, bool) {
	if c.TotalSeries == 0 {
		return Outcome{}, false
	}
	errorRate := float64(c.FailedSeries) / float64(c.TotalSeries)

	triggered := false
	switch cond.Operator {
	case ">=":
		triggered = errorRate >= cond.Threshold
	case ">":
		triggered = errorRate > cond.Threshold
	}
	if !triggered {
		return Outcome{}, false
	}

	return Outcome{
		Details: fmt.Sprintf("High API error rate: %.1f%% (%d/%d series failed)",
			errorRate*100, c.FailedSeries, c.TotalSeries),
		Metadata: map[string]any{
			"error_rate": errorRate,
			"failed":     c.FailedSeries,
			"total":      c.TotalSeries,
		},
	}, true
}

// previewSeries renders the first five series ids, noting how many were cut.
func previewSeries(series []string) string {
	const maxPreview = 5
	if len(series) <= maxPreview {
		return strings.Join(series, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(series[:maxPreview], ", "), len(series)-maxPreview)
}
