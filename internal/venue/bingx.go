package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"spread-radar/internal/market"
)

// BingX queries the spot depth endpoint. Asks arrive worst-first; the aggregator
// normalizes books so no reordering happens here.
type BingX struct {
	rest   restClient
	logger zerolog.Logger
}

// NewBingX builds a BingX connector.
func NewBingX(opts HTTPOptions, logger zerolog.Logger) *BingX {
	return &BingX{
		rest:   newRESTClient(opts.BaseURL, "https://open-api.bingx.com", opts.UserAgent, opts.Timeout),
		logger: logger.With().Str("component", "venue_bingx").Logger(),
	}
}

func (b *BingX) Name() string { return "bingx" }

// TopOfBook fetches the best levels for symbol.
func (b *BingX) TopOfBook(ctx context.Context, symbol string, levels int) (market.Book, error) {
	base, quote, ok := market.SplitSymbol(symbol)
	if !ok {
		return market.Book{}, wrapErr(b.Name(), symbol, ErrUnsupportedSymbol)
	}

	q := url.Values{}
	q.Set("symbol", base+"-"+quote)
	q.Set("limit", strconv.Itoa(clampLevels(levels)))

	var res bingxResponse
	if err := b.rest.getJSON(ctx, b.Name(), "/openApi/spot/v1/market/depth?"+q.Encode(), &res); err != nil {
		return market.Book{}, wrapErr(b.Name(), symbol, err)
	}
	if res.Code != 0 {
		return market.Book{}, wrapErr(b.Name(), symbol, fmt.Errorf("code %d: %s", res.Code, res.Msg))
	}

	bids, err := market.ParseLevels(res.Data.Bids)
	if err != nil {
		return market.Book{}, wrapErr(b.Name(), symbol, err)
	}
	asks, err := market.ParseLevels(res.Data.Asks)
	if err != nil {
		return market.Book{}, wrapErr(b.Name(), symbol, err)
	}
	return market.Book{Bids: bids, Asks: asks}, nil
}

type bingxResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

var _ Connector = (*BingX)(nil)
