package cli

import (
	"github.com/spf13/cobra"

	"macrowatch/internal/app"
)

var (
	exportSeriesID  string
	exportCSVPath   string
	exportPNGPath   string
	exportYears     int
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a series' observation history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			SeriesID:  exportSeriesID,
			CSVPath:   exportCSVPath,
			PNGPath:   exportPNGPath,
			Years:     exportYears,
			MaxPoints: exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSeriesID, "series", "", "Series id to export")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().IntVar(&exportYears, "years", 10, "History window in years")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
