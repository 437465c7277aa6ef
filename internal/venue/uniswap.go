package venue

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spread-radar/internal/market"
)

const pairABIJSON = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"_reserve0","type":"uint112"},{"internalType":"uint112","name":"_reserve1","type":"uint112"},{"internalType":"uint32","name":"_blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}]`

var pairABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		panic("failed to parse Uniswap V2 pair ABI: " + err.Error())
	}
	pairABI = parsed
}

var basisPoints = decimal.NewFromInt(10_000)

// PoolOptions describe one constant-product pool backing a symbol.
type PoolOptions struct {
	Address       string  `mapstructure:"address"`
	BaseDecimals  int32   `mapstructure:"base_decimals"`
	QuoteDecimals int32   `mapstructure:"quote_decimals"`
	BaseIsToken0  bool    `mapstructure:"base_is_token0"`
	ProbeSize     float64 `mapstructure:"probe_size"`
	FeeBps        float64 `mapstructure:"fee_bps"`
}

// UniswapOptions parameterise the AMM venue.
type UniswapOptions struct {
	RPCURL  string
	Timeout time.Duration
	Pools   map[string]PoolOptions
}

// UniswapV2 turns pool reserves into a synthetic one-level book: the ask is the average
// price paid to buy ProbeSize base units, the bid the average price received selling them.
type UniswapV2 struct {
	opts   UniswapOptions
	pools  map[string]PoolOptions
	logger zerolog.Logger

	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewUniswapV2 builds the AMM connector. Pool keys are canonical symbols.
func NewUniswapV2(opts UniswapOptions, logger zerolog.Logger) *UniswapV2 {
	pools := make(map[string]PoolOptions, len(opts.Pools))
	for sym, pool := range opts.Pools {
		pools[strings.ToUpper(strings.TrimSpace(sym))] = pool
	}
	return &UniswapV2{opts: opts, pools: pools, logger: logger.With().Str("component", "venue_uniswapv2").Logger()}
}

func (u *UniswapV2) Name() string { return "uniswapv2" }

// TopOfBook reads the pool reserves and prices the probe size on both sides.
func (u *UniswapV2) TopOfBook(ctx context.Context, symbol string, _ int) (market.Book, error) {
	pool, ok := u.pools[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return market.Book{}, wrapErr(u.Name(), symbol, ErrUnsupportedSymbol)
	}
	if u.opts.RPCURL == "" {
		return market.Book{}, wrapErr(u.Name(), symbol, errors.New("ethereum rpc url not configured"))
	}

	timeout := u.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reserve0, reserve1, err := u.reserves(ctx, pool.Address)
	if err != nil {
		return market.Book{}, wrapErr(u.Name(), symbol, err)
	}

	baseRaw, quoteRaw := reserve0, reserve1
	if !pool.BaseIsToken0 {
		baseRaw, quoteRaw = reserve1, reserve0
	}
	baseReserve := decimal.NewFromBigInt(baseRaw, -pool.BaseDecimals)
	quoteReserve := decimal.NewFromBigInt(quoteRaw, -pool.QuoteDecimals)

	book, err := ammBook(baseReserve, quoteReserve, decimal.NewFromFloat(pool.ProbeSize), decimal.NewFromFloat(pool.FeeBps))
	if err != nil {
		return market.Book{}, wrapErr(u.Name(), symbol, err)
	}
	return book, nil
}

func (u *UniswapV2) reserves(ctx context.Context, address string) (*big.Int, *big.Int, error) {
	client, err := u.getClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	payload, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, err
	}
	addr := common.HexToAddress(address)
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, nil, err
	}

	outputs, err := pairABI.Unpack("getReserves", res)
	if err != nil {
		return nil, nil, err
	}
	if len(outputs) != 3 {
		return nil, nil, errors.New("unexpected getReserves response")
	}
	r0, ok0 := outputs[0].(*big.Int)
	r1, ok1 := outputs[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, errors.New("failed to decode getReserves output")
	}
	return r0, r1, nil
}

func (u *UniswapV2) getClient(ctx context.Context) (*ethclient.Client, error) {
	u.clientMux.Lock()
	defer u.clientMux.Unlock()

	if u.client != nil {
		return u.client, nil
	}

	client, err := ethclient.DialContext(ctx, u.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	u.client = client
	return client, nil
}

// Close releases the RPC client.
func (u *UniswapV2) Close() error {
	u.clientMux.Lock()
	defer u.clientMux.Unlock()
	if u.client != nil {
		u.client.Close()
		u.client = nil
	}
	return nil
}

// ammBook prices a probe trade against x*y=k reserves with the pool fee applied on the input.
func ammBook(baseReserve, quoteReserve, probe, feeBps decimal.Decimal) (market.Book, error) {
	if !baseReserve.IsPositive() || !quoteReserve.IsPositive() {
		return market.Book{}, ErrEmptyBook
	}
	if !probe.IsPositive() {
		return market.Book{}, errors.New("probe size must be positive")
	}
	if probe.GreaterThanOrEqual(baseReserve) {
		return market.Book{}, fmt.Errorf("probe size %s exceeds base reserve %s", probe, baseReserve)
	}
	keep := decimal.NewFromInt(1).Sub(feeBps.Div(basisPoints))

	// selling probe base: out = q·f·Rq / (Rb + q·f)
	effective := probe.Mul(keep)
	quoteOut := effective.Mul(quoteReserve).Div(baseReserve.Add(effective))

	// buying probe base: in = Rq·q / ((Rb − q)·f)
	quoteIn := quoteReserve.Mul(probe).Div(baseReserve.Sub(probe).Mul(keep))

	return market.Book{
		Bids: []market.Level{{Price: quoteOut.Div(probe), Size: probe}},
		Asks: []market.Level{{Price: quoteIn.Div(probe), Size: probe}},
	}, nil
}

var (
	_ Connector = (*UniswapV2)(nil)
	_ Closer    = (*UniswapV2)(nil)
)
