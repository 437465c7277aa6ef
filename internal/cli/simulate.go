package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"spread-radar/internal/app"
)

var (
	simulateSymbol string
	simulateAsk    float64
	simulateBid    float64
	simulateSize   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次跨交易所价差并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAsk <= 0 || simulateBid <= 0 {
			return errors.New("--ask 与 --bid 必须大于 0")
		}

		opts := app.SimulateOptions{
			Symbol: simulateSymbol,
			Ask:    decimal.NewFromFloat(simulateAsk),
			Bid:    decimal.NewFromFloat(simulateBid),
			Size:   decimal.NewFromFloat(simulateSize),
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "BTC/USDT", "交易对")
	simulateCmd.Flags().Float64Var(&simulateAsk, "ask", 0, "买入交易所的卖一价")
	simulateCmd.Flags().Float64Var(&simulateBid, "bid", 0, "卖出交易所的买一价")
	simulateCmd.Flags().Float64Var(&simulateSize, "size", 1, "两侧挂单数量")
}
