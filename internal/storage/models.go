package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spread-radar/internal/market"
)

// OpportunityRecord is a persisted opportunity row tagged with the run that produced it.
type OpportunityRecord struct {
	ID        int64
	RunID     uuid.UUID
	Row       market.OpportunityRow
	CreatedAt time.Time
}

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID           int64
	RunID        uuid.UUID
	FiredAt      time.Time
	ThresholdBps decimal.Decimal
	BestNetBps   decimal.Decimal
	Symbols      []string
	CreatedAt    time.Time
}
