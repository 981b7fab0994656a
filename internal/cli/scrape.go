package cli

import (
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the price page once and record the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scrape(cmd.Context())
	},
}
