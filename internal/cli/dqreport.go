package cli

import (
	"github.com/spf13/cobra"

	"macrowatch/internal/app"
)

var (
	dqRunID    string
	dqSeverity string
	dqLimit    int
)

var dqReportCmd = &cobra.Command{
	Use:   "dq-report",
	Short: "Show the data-quality findings of a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().DQReport(cmd.Context(), app.DQReportOptions{
			RunID:    dqRunID,
			Severity: dqSeverity,
			Limit:    dqLimit,
		})
	},
}

func init() {
	dqReportCmd.Flags().StringVar(&dqRunID, "run-id", "", "Run to inspect (defaults to the latest run)")
	dqReportCmd.Flags().StringVar(&dqSeverity, "severity", "all", "Filter by severity: all, info, warning, critical")
	dqReportCmd.Flags().IntVar(&dqLimit, "limit", 50, "Maximum number of findings to show")
}
