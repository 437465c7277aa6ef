package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"spread-radar/internal/market"
	"spread-radar/internal/storage"
	"spread-radar/internal/venue"
)

// Show prints recently persisted opportunities, or alerts with opts.Alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show opportunities")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return a.printAlerts(alerts)
	}

	records, err := store.ListRecentOpportunities(ctx, opts.Limit)
	if err != nil {
		return err
	}
	return a.printOpportunities(records)
}

func (a *App) printOpportunities(records []storage.OpportunityRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no opportunities found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tBuy@\tAsk\tSell@\tBid\tNet bps\tPnL est $\tRun")

	for _, rec := range records {
		row := rec.Row
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Timestamp.UTC().Format(time.RFC3339),
			row.Symbol,
			row.BuyVenue,
			market.FormatPrice(row.Ask),
			row.SellVenue,
			market.FormatPrice(row.Bid),
			market.FormatBps(row.Net),
			market.FormatUSD(row.PnLUSD, 4),
			shortRunID(rec.RunID.String()),
		)
	}

	return writer.Flush()
}

func (a *App) printAlerts(alerts []storage.AlertRecord) error {
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Fired (UTC)\tThreshold bps\tBest net bps\tSymbols\tRun")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			alert.FiredAt.UTC().Format(time.RFC3339),
			alert.ThresholdBps.StringFixed(1),
			alert.BestNetBps.StringFixed(1),
			strings.Join(alert.Symbols, ","),
			shortRunID(alert.RunID.String()),
		)
	}
	return writer.Flush()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Venues lists every buildable venue and marks the enabled ones with their query order.
func (a *App) Venues() error {
	order := make(map[string]int, len(a.Config.Venues.Enabled))
	for i, name := range a.Config.Venues.Enabled {
		order[strings.ToLower(strings.TrimSpace(name))] = i + 1
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Venue\tEnabled\tOrder")
	for _, name := range venue.Known() {
		pos, ok := order[name]
		switch {
		case ok:
			fmt.Fprintf(writer, "%s\tyes\t%d\n", name, pos)
		default:
			fmt.Fprintf(writer, "%s\tno\t-\n", name)
		}
	}
	return writer.Flush()
}
