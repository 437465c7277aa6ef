package cli

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"spread-radar/internal/app"
)

// scanFlags are shared by run and once. Only flags set on the command line override config.
type scanFlags struct {
	symbols       string
	interval      time.Duration
	feeBps        string
	slipBps       string
	notional      string
	topN          int
	minDepth      string
	diffVenueOnly bool
	alertBps      string
	noAlert       bool
	sound         bool
	exportPath    string
}

func (f *scanFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.symbols, "symbols", "", "Comma or space separated symbols, e.g. BTC/USDT,ETH/USDT")
	fs.DurationVar(&f.interval, "interval", 0, "Pause between cycles (floored at 500ms)")
	fs.StringVar(&f.feeBps, "fee-bps", "", "Round-trip fee estimate in bps")
	fs.StringVar(&f.slipBps, "slip-bps", "", "Slippage estimate in bps")
	fs.StringVar(&f.notional, "notional", "", "Notional size in USD for the PnL estimate")
	fs.IntVar(&f.topN, "top-n", 0, "Rows to keep per cycle (0 keeps all)")
	fs.StringVar(&f.minDepth, "min-depth", "", "Minimum top-level depth in USD on both sides")
	fs.BoolVar(&f.diffVenueOnly, "diff-venue-only", true, "Drop routes that buy and sell on the same venue")
	fs.StringVar(&f.alertBps, "alert-bps", "", "Alert when any net spread reaches this many bps")
	fs.BoolVar(&f.noAlert, "no-alert", false, "Disable alerting")
	fs.BoolVar(&f.sound, "sound", true, "Ring the terminal bell on alerts")
	fs.StringVar(&f.exportPath, "export", "", "Append published rows to this CSV file")
}

func (f *scanFlags) overrides(cmd *cobra.Command) (app.ScanOverrides, error) {
	var o app.ScanOverrides
	changed := cmd.Flags().Changed

	if changed("symbols") {
		o.Symbols = optional.Some(f.symbols)
	}
	if changed("interval") {
		o.Interval = optional.Some(f.interval)
	}
	if changed("top-n") {
		o.TopN = optional.Some(f.topN)
	}
	if changed("diff-venue-only") {
		o.DiffVenueOnly = optional.Some(f.diffVenueOnly)
	}
	if changed("sound") {
		o.AlertSound = optional.Some(f.sound)
	}
	if changed("export") {
		o.ExportPath = optional.Some(f.exportPath)
	}
	o.NoAlert = f.noAlert

	decimals := []struct {
		flag  string
		value string
		dst   *optional.Option[decimal.Decimal]
	}{
		{"fee-bps", f.feeBps, &o.FeeBps},
		{"slip-bps", f.slipBps, &o.SlippageBps},
		{"notional", f.notional, &o.NotionalUSD},
		{"min-depth", f.minDepth, &o.MinDepthUSD},
		{"alert-bps", f.alertBps, &o.AlertBps},
	}
	for _, d := range decimals {
		if !changed(d.flag) {
			continue
		}
		v, err := decimal.NewFromString(d.value)
		if err != nil {
			return app.ScanOverrides{}, fmt.Errorf("invalid --%s value: %w", d.flag, err)
		}
		*d.dst = optional.Some(v)
	}
	return o, nil
}
