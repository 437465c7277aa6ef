package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-radar/internal/alerting"
	"spread-radar/internal/market"
)

type memoryStore struct {
	runs    []uuid.UUID
	rows    []market.OpportunityRow
	alerts  []AlertRecord
	err     error
	cutoffs []time.Time
}

func (m *memoryStore) InsertOpportunities(_ context.Context, runID uuid.UUID, rows []market.OpportunityRow) error {
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, runID)
	m.rows = append(m.rows, rows...)
	return nil
}

func (m *memoryStore) ListOpportunitiesBetween(context.Context, time.Time, time.Time, string) ([]OpportunityRecord, error) {
	return nil, nil
}

func (m *memoryStore) ListRecentOpportunities(context.Context, int) ([]OpportunityRecord, error) {
	return nil, nil
}

func (m *memoryStore) CountOpportunities(context.Context) (int64, error) {
	return int64(len(m.rows)), nil
}

func (m *memoryStore) DeleteOpportunitiesBefore(_ context.Context, olderThan time.Time) (int64, error) {
	m.cutoffs = append(m.cutoffs, olderThan)
	return 3, m.err
}

func (m *memoryStore) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	m.alerts = append(m.alerts, alert)
	return alert, m.err
}

func (m *memoryStore) ListRecentAlerts(context.Context, int) ([]AlertRecord, error) {
	return m.alerts, nil
}

func (m *memoryStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) error {
	m.cutoffs = append(m.cutoffs, olderThan)
	return nil
}

type fakeLocker struct {
	held     bool
	released int
}

func (f *fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if f.held {
		return nil, false, nil
	}
	return func() { f.released++ }, true, nil
}

func TestRetentionPrune(t *testing.T) {
	store := &memoryStore{}
	locker := &fakeLocker{}
	r := &Retention{Opportunities: store, Alerts: store, Locker: locker, MaxAge: 24 * time.Hour, Logger: zerolog.Nop()}

	slot := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Prune(context.Background(), slot))
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []time.Time{want, want}, store.cutoffs)
	assert.Equal(t, 1, locker.released)

	locker.held = true
	require.NoError(t, r.Prune(context.Background(), slot))
	assert.Len(t, store.cutoffs, 2)

	locker.held = false
	store.err = errors.New("disk full")
	assert.Error(t, r.Prune(context.Background(), slot))
	assert.Equal(t, 2, locker.released)
}

func TestSinkTagsRunID(t *testing.T) {
	store := &memoryStore{}
	runID := uuid.New()
	sink := NewSink(store, runID)

	require.NoError(t, sink.Append(context.Background(), []market.OpportunityRow{{Symbol: "BTC/USDT"}}))
	assert.Equal(t, []uuid.UUID{runID}, store.runs)
	assert.Equal(t, "DB", sink.Name())

	store.err = errors.New("connection refused")
	assert.Error(t, sink.Append(context.Background(), []market.OpportunityRow{{Symbol: "ETH/USDT"}}))
}

func TestAlertLogRecordsBestNet(t *testing.T) {
	store := &memoryStore{}
	log := NewAlertLog(store, uuid.New())

	err := log.Notify(context.Background(), alerting.Alert{
		At:           time.Now(),
		ThresholdBps: decimal.NewFromInt(8),
		Rows: []market.OpportunityRow{
			{Symbol: "BTC/USDT", Net: decimal.RequireFromString("0.0034")},
			{Symbol: "ETH/USDT", Net: decimal.RequireFromString("0.0012")},
		},
	})
	require.NoError(t, err)
	require.Len(t, store.alerts, 1)
	assert.True(t, store.alerts[0].BestNetBps.Equal(decimal.NewFromInt(34)))
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, store.alerts[0].Symbols)
}

func TestStoreWithoutPool(t *testing.T) {
	var store *Store
	ctx := context.Background()

	assert.ErrorIs(t, store.InsertOpportunities(ctx, uuid.New(), nil), ErrNotConfigured)
	_, err := store.ListRecentOpportunities(ctx, 10)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, _, err = store.TryAdvisoryLock(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, NewStore(nil).EnsureSchema(ctx), ErrNotConfigured)
	store.Close()
}

var (
	_ OpportunityStore = (*memoryStore)(nil)
	_ AlertStore       = (*memoryStore)(nil)
	_ OpportunityStore = (*Store)(nil)
	_ AlertStore       = (*Store)(nil)
	_ AdvisoryLocker   = (*Store)(nil)
)
