package cli

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseScanFlags(t *testing.T, args ...string) (*scanFlags, *cobra.Command) {
	t.Helper()
	var f scanFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return &f, cmd
}

func TestScanFlagsOnlyChangedOverride(t *testing.T) {
	f, cmd := parseScanFlags(t, "--symbols", "eth/usdt", "--fee-bps", "7.5", "--interval", "2s", "--sound=false")
	o, err := f.overrides(cmd)
	require.NoError(t, err)

	assert.Equal(t, "eth/usdt", o.Symbols.Unwrap())
	assert.True(t, o.FeeBps.Unwrap().Equal(decimal.RequireFromString("7.5")))
	assert.Equal(t, 2*time.Second, o.Interval.Unwrap())
	assert.False(t, o.AlertSound.Unwrap())

	assert.True(t, o.TopN.IsNone())
	assert.True(t, o.NotionalUSD.IsNone())
	assert.True(t, o.DiffVenueOnly.IsNone())
	assert.True(t, o.ExportPath.IsNone())
	assert.False(t, o.NoAlert)
}

func TestScanFlagsRejectBadDecimal(t *testing.T) {
	f, cmd := parseScanFlags(t, "--notional", "lots")
	_, err := f.overrides(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--notional")
}

func TestScanFlagsExportAndNoAlert(t *testing.T) {
	f, cmd := parseScanFlags(t, "--export", "out.csv", "--no-alert", "--top-n", "0")
	o, err := f.overrides(cmd)
	require.NoError(t, err)
	assert.Equal(t, "out.csv", o.ExportPath.Unwrap())
	assert.True(t, o.NoAlert)
	assert.Equal(t, 0, o.TopN.Unwrap())
}
