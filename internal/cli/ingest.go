package cli

import (
	"github.com/spf13/cobra"
)

var ingestMode string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle and print its health summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context(), ingestMode)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestMode, "mode", "incremental", "Ingestion mode: incremental or backfill")
}
