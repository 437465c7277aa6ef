package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"spread-radar/internal/export"
	"spread-radar/internal/market"
)

// Export renders persisted opportunities as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-a.Config.Export.Window)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.ListOpportunitiesBetween(ctx, from, to, strings.ToUpper(strings.TrimSpace(opts.Symbol)))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no opportunities found for export window")
		return nil
	}

	rows := make([]market.OpportunityRow, len(records))
	for i, rec := range records {
		rows[i] = rec.Row
	}
	downsampled := export.Downsample(rows, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting opportunities")

	if opts.CSVPath != "" {
		if err := export.WriteHistoryCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := export.WriteHistoryPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}
