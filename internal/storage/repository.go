package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"spread-radar/internal/market"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createOpportunitiesSQL = `CREATE TABLE IF NOT EXISTS opportunities (
        id             BIGSERIAL PRIMARY KEY,
        run_id         UUID        NOT NULL,
        observed_at    TIMESTAMPTZ NOT NULL,
        symbol         TEXT        NOT NULL,
        buy_venue      TEXT        NOT NULL,
        ask            NUMERIC     NOT NULL,
        ask_depth_usd  NUMERIC     NOT NULL,
        sell_venue     TEXT        NOT NULL,
        bid            NUMERIC     NOT NULL,
        bid_depth_usd  NUMERIC     NOT NULL,
        gross          NUMERIC     NOT NULL,
        net            NUMERIC     NOT NULL,
        pnl_est_usd    NUMERIC     NOT NULL,
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	createOpportunitiesIndexSQL = `CREATE INDEX IF NOT EXISTS opportunities_observed_at_idx
        ON opportunities (observed_at);`

	createAlertsSQL = `CREATE TABLE IF NOT EXISTS alerts (
        id             BIGSERIAL PRIMARY KEY,
        run_id         UUID        NOT NULL,
        fired_at       TIMESTAMPTZ NOT NULL,
        threshold_bps  NUMERIC     NOT NULL,
        best_net_bps   NUMERIC     NOT NULL,
        symbols        TEXT[]      NOT NULL,
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertOpportunitySQL = `INSERT INTO opportunities (
        run_id,
        observed_at,
        symbol,
        buy_venue,
        ask,
        ask_depth_usd,
        sell_venue,
        bid,
        bid_depth_usd,
        gross,
        net,
        pnl_est_usd
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	selectOpportunityColumns = `SELECT
        id,
        run_id,
        observed_at,
        symbol,
        buy_venue,
        ask::text,
        ask_depth_usd::text,
        sell_venue,
        bid::text,
        bid_depth_usd::text,
        gross::text,
        net::text,
        pnl_est_usd::text,
        created_at
    FROM opportunities`

	listOpportunitiesBetweenSQL = selectOpportunityColumns + `
    WHERE observed_at >= $1
      AND observed_at < $2
      AND ($3::text = '' OR symbol = $3::text)
    ORDER BY observed_at, id;`

	listRecentOpportunitiesSQL = selectOpportunityColumns + `
    ORDER BY observed_at DESC, id DESC
    LIMIT $1;`

	countOpportunitiesSQL = `SELECT COUNT(*) FROM opportunities;`

	deleteOpportunitiesBeforeSQL = `DELETE FROM opportunities WHERE observed_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        run_id,
        fired_at,
        threshold_bps,
        best_net_bps,
        symbols
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    RETURNING id, run_id, fired_at, threshold_bps::text, best_net_bps::text, symbols, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        run_id,
        fired_at,
        threshold_bps::text,
        best_net_bps::text,
        symbols,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// OpportunityStore defines operations for opportunity persistence.
type OpportunityStore interface {
	InsertOpportunities(ctx context.Context, runID uuid.UUID, rows []market.OpportunityRow) error
	ListOpportunitiesBetween(ctx context.Context, from, to time.Time, symbol string) ([]OpportunityRecord, error)
	ListRecentOpportunities(ctx context.Context, limit int) ([]OpportunityRecord, error)
	CountOpportunities(ctx context.Context) (int64, error)
	DeleteOpportunitiesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to opportunities and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createOpportunitiesSQL, createOpportunitiesIndexSQL, createAlertsSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertOpportunities writes one cycle's rows in a single batch.
func (s *Store) InsertOpportunities(ctx context.Context, runID uuid.UUID, rows []market.OpportunityRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(insertOpportunitySQL,
			runID,
			row.Timestamp.UTC(),
			row.Symbol,
			row.BuyVenue,
			row.Ask.String(),
			row.AskDepthUSD.String(),
			row.SellVenue,
			row.Bid.String(),
			row.BidDepthUSD.String(),
			row.Gross.String(),
			row.Net.String(),
			row.PnLUSD.String(),
		)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert opportunities: %w", err)
	}
	return nil
}

// ListOpportunitiesBetween lists rows observed within [from, to). An empty symbol matches all.
func (s *Store) ListOpportunitiesBetween(ctx context.Context, from, to time.Time, symbol string) ([]OpportunityRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listOpportunitiesBetweenSQL, from, to, symbol)
	if queryErr != nil {
		return nil, fmt.Errorf("list opportunities between: %w", queryErr)
	}
	defer rows.Close()

	records := make([]OpportunityRecord, 0)
	for rows.Next() {
		record, scanErr := scanOpportunity(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListRecentOpportunities lists the most recent rows, newest first.
func (s *Store) ListRecentOpportunities(ctx context.Context, limit int) ([]OpportunityRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentOpportunitiesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent opportunities: %w", queryErr)
	}
	defer rows.Close()

	records := make([]OpportunityRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanOpportunity(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CountOpportunities counts stored rows.
func (s *Store) CountOpportunities(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countOpportunitiesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count opportunities: %w", scanErr)
	}
	return count, nil
}

// DeleteOpportunitiesBefore prunes old rows and reports how many were removed.
func (s *Store) DeleteOpportunitiesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteOpportunitiesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete opportunities before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.RunID,
		alert.FiredAt.UTC(),
		alert.ThresholdBps.String(),
		alert.BestNetBps.String(),
		alert.Symbols,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var rec AlertRecord
	var thresholdStr, bestNetStr string
	if err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.FiredAt,
		&thresholdStr,
		&bestNetStr,
		&rec.Symbols,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.ThresholdBps, convErr = decimal.NewFromString(thresholdStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse threshold bps: %w", convErr)
	}
	rec.BestNetBps, convErr = decimal.NewFromString(bestNetStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse best net bps: %w", convErr)
	}
	return rec, nil
}

func scanOpportunity(rows pgx.Rows) (OpportunityRecord, error) {
	var (
		rec     OpportunityRecord
		numeric [7]string
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.Row.Timestamp,
		&rec.Row.Symbol,
		&rec.Row.BuyVenue,
		&numeric[0],
		&numeric[1],
		&rec.Row.SellVenue,
		&numeric[2],
		&numeric[3],
		&numeric[4],
		&numeric[5],
		&numeric[6],
		&rec.CreatedAt,
	); err != nil {
		return OpportunityRecord{}, err
	}

	targets := []*decimal.Decimal{
		&rec.Row.Ask,
		&rec.Row.AskDepthUSD,
		&rec.Row.Bid,
		&rec.Row.BidDepthUSD,
		&rec.Row.Gross,
		&rec.Row.Net,
		&rec.Row.PnLUSD,
	}
	for i, target := range targets {
		value, err := decimal.NewFromString(numeric[i])
		if err != nil {
			return OpportunityRecord{}, fmt.Errorf("parse numeric column %d: %w", i, err)
		}
		*target = value
	}
	return rec, nil
}
