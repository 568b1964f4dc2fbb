package cli

import (
	"github.com/spf13/cobra"

	"macrowatch/internal/app"
)

var (
	healthRunID          string
	healthJSONPath       string
	healthFailOnStatus   bool
	healthFailOnCritical bool
	healthFailOnWarning  bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show ingestion run health summary (for automation and triage)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Health(cmd.Context(), app.HealthOptions{
			RunID:          healthRunID,
			JSONPath:       healthJSONPath,
			FailOnStatus:   healthFailOnStatus,
			FailOnCritical: healthFailOnCritical,
			FailOnWarning:  healthFailOnWarning,
		})
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthRunID, "run-id", "", "Run to inspect (defaults to the latest run)")
	healthCmd.Flags().StringVar(&healthJSONPath, "json", "", "Optional path to write a JSON health summary")
	healthCmd.Flags().BoolVar(&healthFailOnStatus, "fail-on-status", false, "Exit non-zero if run status is not success")
	healthCmd.Flags().BoolVar(&healthFailOnCritical, "fail-on-critical", false, "Exit non-zero if critical DQ findings exist")
	healthCmd.Flags().BoolVar(&healthFailOnWarning, "fail-on-warning", false, "Exit non-zero if warning DQ findings exist")
}
