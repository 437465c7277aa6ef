package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spread-radar/internal/scanner"
	"spread-radar/internal/venue"
)

const (
	simBuyVenue  = "sim-buy"
	simSellVenue = "sim-sell"
)

// simOffset keeps each synthetic venue's other side away from the simulated best quotes.
var simOffset = decimal.RequireFromString("0.001")

// SimulateAlert 通过两个静态交易所报价模拟一次告警流程。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Scanner.AlertEnabled {
		return errors.New("scanner.alert_enabled 未启用")
	}

	remote := a.newNotifier()
	if remote == nil && !a.Config.Alerting.Bell {
		return errors.New("未配置任何告警通道")
	}
	if !opts.Ask.IsPositive() || !opts.Bid.IsPositive() {
		return errors.New("ask and bid must be greater than zero")
	}
	if !opts.Size.IsPositive() {
		opts.Size = decimal.NewFromInt(1)
	}

	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		symbol = "BTC/USDT"
	}

	one := decimal.NewFromInt(1)
	buy := venue.NewStatic(simBuyVenue).
		SetQuote(symbol, opts.Ask.Mul(one.Sub(simOffset)), opts.Size, opts.Ask, opts.Size)
	sell := venue.NewStatic(simSellVenue).
		SetQuote(symbol, opts.Bid, opts.Size, opts.Bid.Mul(one.Add(simOffset)), opts.Size)

	cfg := a.Config.ScanConfig()
	cfg.Symbols = []string{symbol}
	cfg.MinDepthUSD = decimal.Zero
	cfg.ExportCSV = false

	scanOpts := scanner.Options{
		Resolver: a.newAggregator([]venue.Connector{buy, sell}, nil),
		Signal:   a.newSignal(),
		Remote:   remote,
	}
	sc := scanner.New(scanOpts, a.Logger)

	cycle, err := sc.RunOnce(ctx, cfg)
	if err != nil {
		return err
	}
	renderer := a.newRenderer()
	for _, status := range cycle.Statuses {
		renderer.Status(status)
	}
	renderer.Snapshot(cycle.Snapshot)

	threshold := cfg.AlertBps.Unwrap()
	if len(scanner.Triggered(cycle.Snapshot.Rows, threshold)) == 0 {
		return fmt.Errorf("simulated spread stays below %s bps; no alert fired", threshold.StringFixed(1))
	}
	return nil
}
