package alerting

import (
	"fmt"
	"strings"
	"time"

	"macrowatch/internal/validation"
)

const (
	digestCriticalPreview = 10
	digestWarningPreview  = 10
	digestInfoPreview     = 5
)

func renderAlertText(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s] %s\n", strings.ToUpper(alert.Severity), alert.RuleName))
	if alert.Description != "" {
		builder.WriteString(fmt.Sprintf("  Description: %s\n", alert.Description))
	}
	builder.WriteString(fmt.Sprintf("  Timestamp: %s\n", alert.Timestamp.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("  Details: %s\n", alert.Details))
	return builder.String()
}

// renderDigestText renders a severity-grouped digest, previewing at most
// 10 critical, 10 warning, and 5 info alerts.
func renderDigestText(alerts []Alert, summary Summary) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Daily Alert Digest - %s\n", summary.Date))
	builder.WriteString("\n")
	builder.WriteString("Summary:\n")
	builder.WriteString(fmt.Sprintf("  Critical: %d\n", summary.CriticalCount))
	builder.WriteString(fmt.Sprintf("  Warning: %d\n", summary.WarningCount))
	builder.WriteString(fmt.Sprintf("  Info: %d\n", summary.InfoCount))
	builder.WriteString(fmt.Sprintf("  Total: %d\n", summary.TotalCount))

	writeSection(&builder, "Critical Alerts", filterSeverity(alerts, "critical"), digestCriticalPreview)
	writeSection(&builder, "Warning Alerts", filterSeverity(alerts, "warning"), digestWarningPreview)
	writeSection(&builder, "Info Alerts", filterSeverity(alerts, "info"), digestInfoPreview)

	return builder.String()
}

func writeSection(builder *strings.Builder, title string, alerts []Alert, limit int) {
	if len(alerts) == 0 {
		return
	}
	builder.WriteString("\n")
	builder.WriteString(title + ":\n")
	for i, alert := range alerts {
		if i >= limit {
			break
		}
		builder.WriteString(renderAlertText(alert))
	}
	if len(alerts) > limit {
		builder.WriteString(fmt.Sprintf("  ... and %d more\n", len(alerts)-limit))
	}
}

func filterSeverity(alerts []Alert, severity string) []Alert {
	matched := make([]Alert, 0, len(alerts))
	for _, alert := range alerts {
		if normalizeSeverity(alert.Severity) == severity {
			matched = append(matched, alert)
		}
	}
	return matched
}

func normalizeSeverity(severity string) string {
	switch severity {
	case string(validation.SeverityCritical), string(validation.SeverityWarning):
		return severity
	}
	return "info"
}
