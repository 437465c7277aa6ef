package venue

import (
	"context"
	"net/http"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"

	"spread-radar/internal/market"
)

// Binance queries the spot depth endpoint through the go-binance client.
type Binance struct {
	client *binance.Client
	logger zerolog.Logger
}

// NewBinance builds a Binance REST connector. No credentials are needed for public depth.
func NewBinance(opts HTTPOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := binance.NewClient("", "")
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		client.UserAgent = ua
	}

	return &Binance{
		client: client,
		logger: logger.With().Str("component", "venue_binance").Logger(),
	}
}

func (b *Binance) Name() string { return "binance" }

// TopOfBook fetches the best levels for symbol.
func (b *Binance) TopOfBook(ctx context.Context, symbol string, levels int) (market.Book, error) {
	base, quote, ok := market.SplitSymbol(symbol)
	if !ok {
		return market.Book{}, wrapErr(b.Name(), symbol, ErrUnsupportedSymbol)
	}

	res, err := b.client.NewDepthService().
		Symbol(base + quote).
		Limit(clampLevels(levels)).
		Do(ctx)
	if err != nil {
		return market.Book{}, wrapErr(b.Name(), symbol, err)
	}

	book := market.Book{
		Bids: make([]market.Level, 0, len(res.Bids)),
		Asks: make([]market.Level, 0, len(res.Asks)),
	}
	for _, bid := range res.Bids {
		lvl, err := market.ParseLevel(bid.Price, bid.Quantity)
		if err != nil {
			return market.Book{}, wrapErr(b.Name(), symbol, err)
		}
		book.Bids = append(book.Bids, lvl)
	}
	for _, ask := range res.Asks {
		lvl, err := market.ParseLevel(ask.Price, ask.Quantity)
		if err != nil {
			return market.Book{}, wrapErr(b.Name(), symbol, err)
		}
		book.Asks = append(book.Asks, lvl)
	}
	return book, nil
}

var _ Connector = (*Binance)(nil)
