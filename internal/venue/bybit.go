package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"spread-radar/internal/market"
)

// Bybit queries the v5 spot order book endpoint.
type Bybit struct {
	rest   restClient
	logger zerolog.Logger
}

// NewBybit builds a Bybit connector.
func NewBybit(opts HTTPOptions, logger zerolog.Logger) *Bybit {
	return &Bybit{
		rest:   newRESTClient(opts.BaseURL, "https://api.bybit.com", opts.UserAgent, opts.Timeout),
		logger: logger.With().Str("component", "venue_bybit").Logger(),
	}
}

func (b *Bybit) Name() string { return "bybit" }

// TopOfBook fetches the best levels for symbol.
func (b *Bybit) TopOfBook(ctx context.Context, symbol string, levels int) (market.Book, error) {
	base, quote, ok := market.SplitSymbol(symbol)
	if !ok {
		return market.Book{}, wrapErr(b.Name(), symbol, ErrUnsupportedSymbol)
	}

	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", base+quote)
	q.Set("limit", strconv.Itoa(clampLevels(levels)))

	var res bybitResponse
	if err := b.rest.getJSON(ctx, b.Name(), "/v5/market/orderbook?"+q.Encode(), &res); err != nil {
		return market.Book{}, wrapErr(b.Name(), symbol, err)
	}
	if res.RetCode != 0 {
		return market.Book{}, wrapErr(b.Name(), symbol, fmt.Errorf("retCode %d: %s", res.RetCode, res.RetMsg))
	}

	bids, err := market.ParseLevels(res.Result.Bids)
	if err != nil {
		return market.Book{}, wrapErr(b.Name(), symbol, err)
	}
	asks, err := market.ParseLevels(res.Result.Asks)
	if err != nil {
		return market.Book{}, wrapErr(b.Name(), symbol, err)
	}
	return market.Book{Bids: bids, Asks: asks}, nil
}

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
	} `json:"result"`
}

var _ Connector = (*Bybit)(nil)
