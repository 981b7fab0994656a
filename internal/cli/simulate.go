package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateFuel     string
	simulatePrevious float64
	simulateCurrent  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次油价变动并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous 与 --current 必须大于 0")
		}
		if simulateFuel == "" {
			return errors.New("--fuel 不能为空")
		}

		previous := decimal.NewFromFloat(simulatePrevious)
		current := decimal.NewFromFloat(simulateCurrent)
		return getApp().SimulateAlert(cmd.Context(), simulateFuel, previous, current)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateFuel, "fuel", "Neste Futura 95", "油品名称")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "上一次价格 (EUR)")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "当前价格 (EUR)")
}
