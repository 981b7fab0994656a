package cli

import (
	"github.com/spf13/cobra"
)

var resetConfirm bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored observation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Reset(cmd.Context(), resetConfirm)
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "yes", false, "Confirm truncation of the observation log")
}
