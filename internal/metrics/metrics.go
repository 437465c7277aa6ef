// Package metrics exposes Prometheus instrumentation for the scanner.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "spreadradar"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	venueErrors   *prometheus.CounterVec
	rowsPublished prometheus.Counter
	bestNetBps    *prometheus.GaugeVec
	alerts        prometheus.Counter
	sinkErrors    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycles_total",
			Help:      "Completed scan cycles",
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one scan cycle, excluding the sleep",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		venueErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "errors_total",
			Help:      "Venue requests that failed or timed out",
		}, []string{"venue"}),
		rowsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "rows_published_total",
			Help:      "Opportunity rows published to the consumer",
		}),
		bestNetBps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "net_spread_bps",
			Help:      "Latest net spread per published symbol",
		}, []string{"symbol"}),
		alerts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "alerts_total",
			Help:      "Cycles that crossed the alert threshold",
		}),
		sinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Failed row exports",
		}, []string{"sink"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// VenueFailed counts one failed venue request.
func (m *Metrics) VenueFailed(venue string) {
	if m == nil {
		return
	}
	m.venueErrors.WithLabelValues(venue).Inc()
}

// CycleCompleted records a finished cycle.
func (m *Metrics) CycleCompleted(elapsed time.Duration, rows int) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
	m.rowsPublished.Add(float64(rows))
}

// NetSpread sets the latest net spread for symbol.
func (m *Metrics) NetSpread(symbol string, bps float64) {
	if m == nil {
		return
	}
	m.bestNetBps.WithLabelValues(symbol).Set(bps)
}

// AlertFired counts an alerting cycle.
func (m *Metrics) AlertFired() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}

// SinkFailed counts a failed export to sink.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger = logger.With().Str("component", "metrics").Logger()
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listener started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
