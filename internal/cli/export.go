package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fuel-price-tracker/internal/app"
)

var (
	exportInterval string
	exportDevice   string
	exportMode     string
	exportCutoff   string
	exportFuels    []string
	exportPNGPath  string
	exportCSVPath  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export bucketed prices with trend lines as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Interval:  exportInterval,
			Device:    exportDevice,
			Mode:      exportMode,
			FuelTypes: exportFuels,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
		}

		if exportCutoff != "" {
			if exportMode == "" {
				return fmt.Errorf("--cutoff requires --mode")
			}
			cutoff, err := time.Parse(time.RFC3339, exportCutoff)
			if err != nil {
				return fmt.Errorf("invalid --cutoff value: %w", err)
			}
			opts.Cutoff = &cutoff
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportInterval, "interval", "days", "Rolling view: days, weeks or months")
	exportCmd.Flags().StringVar(&exportDevice, "device", "desktop", "Lookback table: desktop or mobile")
	exportCmd.Flags().StringVar(&exportMode, "mode", "", "Explicit bucket mode (day, week, month); overrides --interval")
	exportCmd.Flags().StringVar(&exportCutoff, "cutoff", "", "Only include observations at or after this RFC3339 timestamp (with --mode)")
	exportCmd.Flags().StringSliceVar(&exportFuels, "fuel", nil, "Fuel types to include (default: all)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
}
