package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fuel-price-tracker/internal/app"
	"fuel-price-tracker/internal/httpapi"
)

var (
	showFuels   []string
	showWindows []string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest snapshot and windowed price changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		windows := make([]time.Duration, 0, len(showWindows))
		for _, raw := range showWindows {
			w, err := httpapi.ParseWindow(raw)
			if err != nil {
				return fmt.Errorf("invalid --window value: %w", err)
			}
			windows = append(windows, w)
		}

		opts := app.ShowOptions{
			FuelTypes: showFuels,
			Windows:   windows,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringSliceVar(&showFuels, "fuel", nil, "Fuel types to average (default: all in latest snapshot)")
	showCmd.Flags().StringSliceVar(&showWindows, "window", nil, "Change windows such as 24h,7d (defaults to config)")
}
