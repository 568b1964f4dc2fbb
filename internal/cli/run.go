package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled ingestion daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunDaemon(cmd.Context())
	},
}
