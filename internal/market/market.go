package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Level is one price level of an order book.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Notional returns price × size in quote currency.
func (l Level) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}

func (l Level) usable() bool {
	return l.Price.IsPositive() && l.Size.IsPositive()
}

// Book is a venue order book snapshot, best level first on each side.
type Book struct {
	Bids []Level
	Asks []Level
}

// Normalize drops unusable levels and orders bids descending, asks ascending.
// Some venues publish asks worst-first; callers rely on index 0 being the top of book.
func (b Book) Normalize() Book {
	bids := make([]Level, 0, len(b.Bids))
	for _, lvl := range b.Bids {
		if lvl.usable() {
			bids = append(bids, lvl)
		}
	}
	asks := make([]Level, 0, len(b.Asks))
	for _, lvl := range b.Asks {
		if lvl.usable() {
			asks = append(asks, lvl)
		}
	}
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	return Book{Bids: bids, Asks: asks}
}

// TwoSided reports whether both sides carry at least one level.
func (b Book) TwoSided() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0
}

// VenueQuote is the top of book of one venue for one symbol.
type VenueQuote struct {
	Venue   string
	Bid     decimal.Decimal
	BidSize decimal.Decimal
	Ask     decimal.Decimal
	AskSize decimal.Decimal
}

// QuoteFromBook extracts the top level of a book. ok is false for empty or one-sided books.
func QuoteFromBook(venue string, book Book) (VenueQuote, bool) {
	if !book.TwoSided() {
		return VenueQuote{}, false
	}
	bid, ask := book.Bids[0], book.Asks[0]
	if !bid.usable() || !ask.usable() {
		return VenueQuote{}, false
	}
	return VenueQuote{
		Venue:   venue,
		Bid:     bid.Price,
		BidSize: bid.Size,
		Ask:     ask.Price,
		AskSize: ask.Size,
	}, true
}

// BidDepth is the bid notional at the top level.
func (q VenueQuote) BidDepth() decimal.Decimal { return q.Bid.Mul(q.BidSize) }

// AskDepth is the ask notional at the top level.
func (q VenueQuote) AskDepth() decimal.Decimal { return q.Ask.Mul(q.AskSize) }

// BuySide is where the cheapest ask was found.
type BuySide struct {
	Venue    string
	Ask      decimal.Decimal
	AskSize  decimal.Decimal
	AskDepth decimal.Decimal
}

// SellSide is where the richest bid was found.
type SellSide struct {
	Venue    string
	Bid      decimal.Decimal
	BidSize  decimal.Decimal
	BidDepth decimal.Decimal
}

// BestQuotePair is the cross-venue reduction for one symbol.
type BestQuotePair struct {
	Symbol string
	Buy    BuySide
	Sell   SellSide
}

// OpportunityRow is one scored symbol for one scan cycle.
type OpportunityRow struct {
	Symbol      string
	BuyVenue    string
	Ask         decimal.Decimal
	AskDepthUSD decimal.Decimal
	SellVenue   string
	Bid         decimal.Decimal
	BidDepthUSD decimal.Decimal
	Gross       decimal.Decimal
	Net         decimal.Decimal
	PnLUSD      decimal.Decimal
	Timestamp   time.Time
}

// GrossBps returns the gross spread in basis points.
func (r OpportunityRow) GrossBps() decimal.Decimal { return FractionToBps(r.Gross) }

// NetBps returns the net spread in basis points.
func (r OpportunityRow) NetBps() decimal.Decimal { return FractionToBps(r.Net) }

// Class buckets the row by net spread for display.
func (r OpportunityRow) Class() Class { return Classify(r.NetBps()) }
