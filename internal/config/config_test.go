package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-radar/internal/market"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: radar\n"))
	require.NoError(t, err)

	assert.Equal(t, "radar", cfg.App.Name)
	assert.Equal(t, []string{"binance", "bybit", "okx", "bingx"}, cfg.Venues.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Venues.RequestTimeout)
	assert.Equal(t, 1200*time.Millisecond, cfg.Scanner.Interval)
	assert.True(t, cfg.Scanner.FeeBps.Equal(decimal.NewFromInt(11)))
	assert.True(t, cfg.Scanner.AlertBps.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, 150*time.Millisecond, cfg.Render.Every)

	scan := cfg.ScanConfig()
	require.NoError(t, scan.Validate())
	assert.Equal(t, market.DefaultSymbols, scan.Symbols)
	assert.True(t, scan.AlertBps.IsSome())
	assert.True(t, scan.NotionalUSD.Equal(decimal.NewFromInt(200)))
	assert.NotEqual(t, cfg.ScanConfig().RunID, scan.RunID)
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
scanner:
  symbols: [btc/usdt, eth/usdt]
  interval: 2s
  fee_bps: 7.5
  slippage_bps: "2"
  notional_usd: 1000
  top_n: 3
  alert_enabled: false
  export_csv: true
  export_path: out/radar.csv
venues:
  enabled: [okx, binance-ws, uniswapv2]
  base_urls:
    OKX: http://localhost:9000
  uniswap:
    rpc_url: http://localhost:8545
    pools:
      eth/usdt:
        address: "0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852"
        base_decimals: 18
        quote_decimals: 6
        base_is_token0: true
        probe_size: 1
        fee_bps: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Scanner.FeeBps.Equal(decimal.RequireFromString("7.5")))
	assert.True(t, cfg.Scanner.SlippageBps.Equal(decimal.NewFromInt(2)))

	scan := cfg.ScanConfig()
	require.NoError(t, scan.Validate())
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, scan.Symbols)
	assert.Equal(t, 2*time.Second, scan.Interval)
	assert.Equal(t, 3, scan.TopN)
	assert.True(t, scan.AlertBps.IsNone())
	assert.True(t, scan.ExportCSV)
	assert.Equal(t, "out/radar.csv", scan.ExportPath)

	opts := cfg.VenueOptions(scan.Symbols, "ua/1")
	assert.Equal(t, "http://localhost:9000", opts.BaseURLs["okx"])
	assert.Equal(t, "ua/1", opts.UserAgent)
	assert.Equal(t, scan.Symbols, opts.Symbols)
	require.Contains(t, opts.Uniswap.Pools, "eth/usdt")
	pool := opts.Uniswap.Pools["eth/usdt"]
	assert.Equal(t, int32(18), pool.BaseDecimals)
	assert.True(t, pool.BaseIsToken0)
	assert.Equal(t, 30.0, pool.FeeBps)
}

func TestLoadIntervalAsSeconds(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"1.2", 1200 * time.Millisecond},
		{"3", 3 * time.Second},
		{"0.5", 500 * time.Millisecond},
		{`"2.5"`, 2500 * time.Millisecond},
		{"750ms", 750 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, "scanner:\n  interval: "+tc.value+"\n"))
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.Scanner.Interval)
			assert.Equal(t, tc.want, cfg.ScanConfig().Interval)
		})
	}
}

func TestLoadIntervalSecondsFromEnv(t *testing.T) {
	t.Setenv("SPREADRADAR_SCANNER_INTERVAL", "1.2")
	cfg, err := Load(writeConfig(t, "app:\n  name: radar\n"))
	require.NoError(t, err)
	assert.Equal(t, 1200*time.Millisecond, cfg.Scanner.Interval)
}

func TestLoadRejectsUnparsableInterval(t *testing.T) {
	_, err := Load(writeConfig(t, "scanner:\n  interval: soon\n"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPREADRADAR_SCANNER_TOP_N", "7")
	t.Setenv("SPREADRADAR_SCANNER_MIN_DEPTH_USD", "1500.5")
	t.Setenv("SPREADRADAR_VENUES_ENABLED", "bybit,okx")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Scanner.TopN)
	assert.True(t, cfg.Scanner.MinDepthUSD.Equal(decimal.RequireFromString("1500.5")))
	assert.Equal(t, []string{"bybit", "okx"}, cfg.Venues.Enabled)
}

func TestLoadRejectsBadDecimal(t *testing.T) {
	_, err := Load(writeConfig(t, "scanner:\n  fee_bps: eleven\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal config")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, "{}\n"))
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no venues", func(c *Config) { c.Venues.Enabled = nil }, "venues.enabled"},
		{"unknown venue", func(c *Config) { c.Venues.Enabled = []string{"kraken"} }, "unknown venue"},
		{"timeout", func(c *Config) { c.Venues.RequestTimeout = 0 }, "request_timeout"},
		{"interval", func(c *Config) { c.Scanner.Interval = -time.Second }, "scanner.interval"},
		{"max points", func(c *Config) { c.Export.MaxDataPoints = 0 }, "max_data_points"},
		{"retention", func(c *Config) { c.Retention.MaxAge = time.Hour; c.Retention.Interval = 0 }, "retention.interval"},
		{"telegram", func(c *Config) { c.Alerting.Telegram.Enabled = true }, "bot_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	cfg := base()
	cfg.Venues.Enabled = []string{" Binance "}
	assert.NoError(t, cfg.Validate())
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	assert.Equal(t, 100, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 5, cfg.ResolveMaxPoints(5))
}
