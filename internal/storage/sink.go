package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spread-radar/internal/alerting"
	"spread-radar/internal/market"
)

// Sink feeds scan cycles into an OpportunityStore under one run id.
type Sink struct {
	store OpportunityStore
	runID uuid.UUID
}

// NewSink binds store to runID.
func NewSink(store OpportunityStore, runID uuid.UUID) *Sink {
	return &Sink{store: store, runID: runID}
}

func (s *Sink) Name() string { return "DB" }

// Append persists one cycle of rows.
func (s *Sink) Append(ctx context.Context, rows []market.OpportunityRow) error {
	return s.store.InsertOpportunities(ctx, s.runID, rows)
}

// AlertLog records every alert it receives.
type AlertLog struct {
	store AlertStore
	runID uuid.UUID
}

// NewAlertLog 构造告警审计记录器。
func NewAlertLog(store AlertStore, runID uuid.UUID) *AlertLog {
	return &AlertLog{store: store, runID: runID}
}

func (l *AlertLog) Notify(ctx context.Context, alert alerting.Alert) error {
	best := decimal.Zero
	symbols := make([]string, 0, len(alert.Rows))
	for i, row := range alert.Rows {
		if i == 0 || row.NetBps().GreaterThan(best) {
			best = row.NetBps()
		}
		symbols = append(symbols, row.Symbol)
	}

	_, err := l.store.InsertAlert(ctx, AlertRecord{
		RunID:        l.runID,
		FiredAt:      alert.At,
		ThresholdBps: alert.ThresholdBps,
		BestNetBps:   best,
		Symbols:      symbols,
	})
	return err
}

var _ alerting.Notifier = (*AlertLog)(nil)
