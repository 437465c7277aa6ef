package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spread-radar/internal/market"
	"spread-radar/internal/venue"
)

const defaultTimeout = 5 * time.Second

// Recorder receives per-venue failure events. Implementations must be safe for concurrent use.
type Recorder interface {
	VenueFailed(venue string)
}

// Options tune how venues are queried.
type Options struct {
	Levels      int
	Timeout     time.Duration
	Concurrency int
	Recorder    Recorder
}

// Aggregator resolves the cross-venue best quotes for a symbol.
type Aggregator struct {
	connectors []venue.Connector
	opts       Options
	logger     zerolog.Logger
}

// New builds an Aggregator over connectors. Their order is the tie-break order.
func New(connectors []venue.Connector, opts Options, logger zerolog.Logger) *Aggregator {
	if opts.Levels <= 0 {
		opts.Levels = venue.DefaultLevels
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Aggregator{
		connectors: append([]venue.Connector(nil), connectors...),
		opts:       opts,
		logger:     logger.With().Str("component", "aggregator").Logger(),
	}
}

// Resolve queries every venue concurrently and folds the usable answers in venue order.
// ok is false when no venue produced a two-sided book.
func (a *Aggregator) Resolve(ctx context.Context, symbol string) (market.BestQuotePair, bool) {
	quotes := make([]market.VenueQuote, len(a.connectors))
	usable := make([]bool, len(a.connectors))

	var g errgroup.Group
	if a.opts.Concurrency > 0 {
		g.SetLimit(a.opts.Concurrency)
	}
	for i, c := range a.connectors {
		i, c := i, c
		g.Go(func() error {
			quotes[i], usable[i] = a.query(ctx, c, symbol)
			return nil
		})
	}
	_ = g.Wait()

	responding := make([]market.VenueQuote, 0, len(quotes))
	for i, q := range quotes {
		if usable[i] {
			responding = append(responding, q)
		}
	}
	return Fold(symbol, responding)
}

type fetched struct {
	book market.Book
	err  error
}

// query bounds the call by Options.Timeout even when the connector ignores ctx.
// An abandoned call finishes on its own goroutine and its result is discarded.
func (a *Aggregator) query(ctx context.Context, c venue.Connector, symbol string) (market.VenueQuote, bool) {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	result := make(chan fetched, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fetched{err: fmt.Errorf("connector panic: %v", r)}
			}
		}()
		book, err := c.TopOfBook(callCtx, symbol, a.opts.Levels)
		result <- fetched{book: book, err: err}
	}()

	var res fetched
	select {
	case res = <-result:
	case <-callCtx.Done():
		res = fetched{err: callCtx.Err()}
	}
	if res.err != nil {
		a.failed(c.Name(), symbol, res.err)
		return market.VenueQuote{}, false
	}

	quote, ok := market.QuoteFromBook(c.Name(), res.book.Normalize())
	if !ok {
		a.logger.Debug().Str("venue", c.Name()).Str("symbol", symbol).Msg("one-sided or empty book skipped")
	}
	return quote, ok
}

func (a *Aggregator) failed(name, symbol string, err error) {
	a.logger.Debug().Err(err).Str("venue", name).Str("symbol", symbol).Msg("venue skipped")
	if a.opts.Recorder != nil {
		a.opts.Recorder.VenueFailed(name)
	}
}

// Fold reduces quotes to the minimum ask and maximum bid. Equal prices keep the earlier quote.
func Fold(symbol string, quotes []market.VenueQuote) (market.BestQuotePair, bool) {
	pair := market.BestQuotePair{Symbol: symbol}
	var haveBuy, haveSell bool
	for _, q := range quotes {
		if !haveBuy || q.Ask.LessThan(pair.Buy.Ask) {
			pair.Buy = market.BuySide{Venue: q.Venue, Ask: q.Ask, AskSize: q.AskSize, AskDepth: q.AskDepth()}
			haveBuy = true
		}
		if !haveSell || q.Bid.GreaterThan(pair.Sell.Bid) {
			pair.Sell = market.SellSide{Venue: q.Venue, Bid: q.Bid, BidSize: q.BidSize, BidDepth: q.BidDepth()}
			haveSell = true
		}
	}
	if !haveBuy || !haveSell {
		return market.BestQuotePair{}, false
	}
	return pair, true
}
