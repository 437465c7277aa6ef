package scanner

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"spread-radar/internal/alerting"
	"spread-radar/internal/market"
)

// Admit applies the venue and depth filters to a resolved pair.
func Admit(pair market.BestQuotePair, cfg Config) bool {
	if cfg.DiffVenueOnly && pair.Buy.Venue == pair.Sell.Venue {
		return false
	}
	if pair.Buy.AskDepth.LessThan(cfg.MinDepthUSD) || pair.Sell.BidDepth.LessThan(cfg.MinDepthUSD) {
		return false
	}
	return true
}

// Score turns a pair into an opportunity row. Fee and slippage are fractions.
func Score(pair market.BestQuotePair, notional, fee, slippage decimal.Decimal, at time.Time) market.OpportunityRow {
	gross := pair.Sell.Bid.Sub(pair.Buy.Ask).Div(pair.Buy.Ask)
	net := gross.Sub(fee).Sub(slippage)

	return market.OpportunityRow{
		Symbol:      pair.Symbol,
		BuyVenue:    pair.Buy.Venue,
		Ask:         pair.Buy.Ask,
		AskDepthUSD: pair.Buy.AskDepth,
		SellVenue:   pair.Sell.Venue,
		Bid:         pair.Sell.Bid,
		BidDepthUSD: pair.Sell.BidDepth,
		Gross:       gross,
		Net:         net,
		PnLUSD:      notional.Mul(net),
		Timestamp:   at,
	}
}

// Rank stable-sorts rows by net spread, best first, and keeps the first topN when topN > 0.
func Rank(rows []market.OpportunityRow, topN int) []market.OpportunityRow {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Net.GreaterThan(rows[j].Net)
	})
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return rows
}

// Triggered returns the rows whose net spread in bps reaches threshold.
func Triggered(rows []market.OpportunityRow, thresholdBps decimal.Decimal) []market.OpportunityRow {
	var hits []market.OpportunityRow
	for _, row := range rows {
		if row.NetBps().GreaterThanOrEqual(thresholdBps) {
			hits = append(hits, row)
		}
	}
	return hits
}

// Header is the one-line summary published with every snapshot.
func Header(cfg Config, routes int) string {
	return fmt.Sprintf("Radar active | Fee≈%sbps, Slip≈%sbps | MinDepth=$%s | TopN=%d | %d routes",
		alerting.FormatThreshold(cfg.FeeBps), alerting.FormatThreshold(cfg.SlippageBps),
		cfg.MinDepthUSD.StringFixed(0), cfg.TopN, routes)
}
