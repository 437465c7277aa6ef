package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.VenueFailed("okx")
	m.VenueFailed("okx")
	m.VenueFailed("bybit")
	m.CycleCompleted(150*time.Millisecond, 3)
	m.CycleCompleted(50*time.Millisecond, 2)
	m.AlertFired()
	m.SinkFailed("CSV")
	m.NetSpread("BTC/USDT", 34)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.venueErrors.WithLabelValues("okx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.venueErrors.WithLabelValues("bybit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.rowsPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sinkErrors.WithLabelValues("CSV")))
	assert.Equal(t, 34.0, testutil.ToFloat64(m.bestNetBps.WithLabelValues("BTC/USDT")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.cycleDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.VenueFailed("okx")
	m.CycleCompleted(time.Second, 1)
	m.AlertFired()
	m.SinkFailed("CSV")
	m.NetSpread("BTC/USDT", 1)
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.CycleCompleted(time.Millisecond, 1)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "spreadradar_scanner_cycles_total 1"))
}
