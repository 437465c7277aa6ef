package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Retention prunes rows and alerts older than MaxAge. With a Locker only one process prunes per slot.
type Retention struct {
	Opportunities OpportunityStore
	Alerts        AlertStore
	Locker        AdvisoryLocker
	LockKey       int64
	MaxAge        time.Duration
	Logger        zerolog.Logger
}

// Prune is a scheduler job.
func (r *Retention) Prune(ctx context.Context, slot time.Time) error {
	if r.MaxAge <= 0 {
		return nil
	}

	if r.Locker != nil {
		unlock, acquired, err := r.Locker.TryAdvisoryLock(ctx, r.LockKey)
		if err != nil {
			return err
		}
		if !acquired {
			r.Logger.Debug().Time("slot", slot).Msg("skip pruning because advisory lock held elsewhere")
			return nil
		}
		defer unlock()
	}

	cutoff := slot.Add(-r.MaxAge)
	var removed int64
	if r.Opportunities != nil {
		n, err := r.Opportunities.DeleteOpportunitiesBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune opportunities: %w", err)
		}
		removed = n
	}
	if r.Alerts != nil {
		if err := r.Alerts.DeleteAlertsBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("prune alerts: %w", err)
		}
	}

	r.Logger.Info().Time("cutoff", cutoff).Int64("rows_removed", removed).Msg("retention pass complete")
	return nil
}
