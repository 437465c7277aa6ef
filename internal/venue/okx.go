package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"spread-radar/internal/market"
)

// OKX queries the v5 public books endpoint.
type OKX struct {
	rest   restClient
	logger zerolog.Logger
}

// NewOKX builds an OKX connector.
func NewOKX(opts HTTPOptions, logger zerolog.Logger) *OKX {
	return &OKX{
		rest:   newRESTClient(opts.BaseURL, "https://www.okx.com", opts.UserAgent, opts.Timeout),
		logger: logger.With().Str("component", "venue_okx").Logger(),
	}
}

func (o *OKX) Name() string { return "okx" }

// TopOfBook fetches the best levels for symbol.
func (o *OKX) TopOfBook(ctx context.Context, symbol string, levels int) (market.Book, error) {
	base, quote, ok := market.SplitSymbol(symbol)
	if !ok {
		return market.Book{}, wrapErr(o.Name(), symbol, ErrUnsupportedSymbol)
	}

	q := url.Values{}
	q.Set("instId", base+"-"+quote)
	q.Set("sz", strconv.Itoa(clampLevels(levels)))

	var res okxResponse
	if err := o.rest.getJSON(ctx, o.Name(), "/api/v5/market/books?"+q.Encode(), &res); err != nil {
		return market.Book{}, wrapErr(o.Name(), symbol, err)
	}
	if res.Code != "0" {
		return market.Book{}, wrapErr(o.Name(), symbol, fmt.Errorf("code %s: %s", res.Code, res.Msg))
	}
	if len(res.Data) == 0 {
		return market.Book{}, wrapErr(o.Name(), symbol, ErrEmptyBook)
	}

	bids, err := market.ParseLevels(res.Data[0].Bids)
	if err != nil {
		return market.Book{}, wrapErr(o.Name(), symbol, err)
	}
	asks, err := market.ParseLevels(res.Data[0].Asks)
	if err != nil {
		return market.Book{}, wrapErr(o.Name(), symbol, err)
	}
	return market.Book{Bids: bids, Asks: asks}, nil
}

type okxResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

var _ Connector = (*OKX)(nil)
