package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-radar/internal/market"
	"spread-radar/internal/venue"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(v, bid, ask string) market.VenueQuote {
	return market.VenueQuote{Venue: v, Bid: d(bid), BidSize: d("1"), Ask: d(ask), AskSize: d("1")}
}

type blocking struct{ name string }

func (b blocking) Name() string { return b.name }

func (b blocking) TopOfBook(ctx context.Context, _ string, _ int) (market.Book, error) {
	<-ctx.Done()
	return market.Book{}, ctx.Err()
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) TopOfBook(context.Context, string, int) (market.Book, error) {
	panic("boom")
}

type countingRecorder struct {
	mu     sync.Mutex
	failed map[string]int
}

func (r *countingRecorder) VenueFailed(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed == nil {
		r.failed = make(map[string]int)
	}
	r.failed[v]++
}

func TestFoldPicksMinAskMaxBid(t *testing.T) {
	pair, ok := Fold("BTC/USDT", []market.VenueQuote{
		quote("a", "99.9", "100.2"),
		quote("b", "100.5", "100.7"),
		quote("c", "99.8", "100.0"),
	})
	require.True(t, ok)
	assert.Equal(t, "c", pair.Buy.Venue)
	assert.True(t, pair.Buy.Ask.Equal(d("100.0")))
	assert.True(t, pair.Buy.AskDepth.Equal(d("100.0")))
	assert.Equal(t, "b", pair.Sell.Venue)
	assert.True(t, pair.Sell.Bid.Equal(d("100.5")))
}

func TestFoldTiesKeepFirstSeen(t *testing.T) {
	pair, ok := Fold("ETH/USDT", []market.VenueQuote{
		quote("first", "10", "11"),
		quote("second", "10", "11"),
	})
	require.True(t, ok)
	assert.Equal(t, "first", pair.Buy.Venue)
	assert.Equal(t, "first", pair.Sell.Venue)
}

func TestFoldEmpty(t *testing.T) {
	_, ok := Fold("ETH/USDT", nil)
	assert.False(t, ok)
}

func TestResolveSkipsFailingVenues(t *testing.T) {
	good := venue.NewStatic("good").SetQuote("BTC/USDT", d("100"), d("5"), d("101"), d("5"))
	bad := venue.NewStatic("bad").SetError("BTC/USDT", errors.New("rate limited"))
	oneSided := venue.NewStatic("onesided").SetBook("BTC/USDT", market.Book{
		Bids: []market.Level{{Price: d("200"), Size: d("1")}},
	})
	rec := &countingRecorder{}

	agg := New([]venue.Connector{bad, oneSided, good, panicky{}}, Options{Recorder: rec}, zerolog.Nop())
	pair, ok := agg.Resolve(context.Background(), "BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "good", pair.Buy.Venue)
	assert.Equal(t, "good", pair.Sell.Venue)
	assert.Equal(t, 1, rec.failed["bad"])
	assert.Equal(t, 1, rec.failed["panicky"])
	assert.Zero(t, rec.failed["onesided"])
}

func TestResolveAbsentWhenNobodyAnswers(t *testing.T) {
	agg := New([]venue.Connector{venue.NewStatic("empty")}, Options{}, zerolog.Nop())
	_, ok := agg.Resolve(context.Background(), "SOL/USDT")
	assert.False(t, ok)
}

func TestResolveBoundsSlowVenues(t *testing.T) {
	fast := venue.NewStatic("fast").SetQuote("BTC/USDT", d("100"), d("5"), d("101"), d("5"))
	agg := New([]venue.Connector{blocking{name: "slow"}, fast}, Options{Timeout: 50 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	pair, ok := agg.Resolve(context.Background(), "BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, "fast", pair.Buy.Venue)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolveTiesFollowRegistryOrder(t *testing.T) {
	a := venue.NewStatic("a").SetQuote("BTC/USDT", d("100"), d("1"), d("101"), d("1"))
	b := venue.NewStatic("b").SetQuote("BTC/USDT", d("100"), d("1"), d("101"), d("1"))

	for i := 0; i < 20; i++ {
		agg := New([]venue.Connector{a, b}, Options{}, zerolog.Nop())
		pair, ok := agg.Resolve(context.Background(), "BTC/USDT")
		require.True(t, ok)
		require.Equal(t, "a", pair.Buy.Venue)
		require.Equal(t, "a", pair.Sell.Venue)
	}
}

// deaf never looks at ctx and only returns once the test is over.
type deaf struct{ release chan struct{} }

func (deaf) Name() string { return "deaf" }

func (d deaf) TopOfBook(context.Context, string, int) (market.Book, error) {
	<-d.release
	return market.Book{}, nil
}

func TestResolveBoundsConnectorsIgnoringContext(t *testing.T) {
	stuck := deaf{release: make(chan struct{})}
	t.Cleanup(func() { close(stuck.release) })

	fast := venue.NewStatic("fast").SetQuote("BTC/USDT", d("100"), d("5"), d("101"), d("5"))
	rec := &countingRecorder{}
	agg := New([]venue.Connector{stuck, fast}, Options{Timeout: 50 * time.Millisecond, Recorder: rec}, zerolog.Nop())

	done := make(chan struct{})
	var pair market.BestQuotePair
	var ok bool
	go func() {
		defer close(done)
		pair, ok = agg.Resolve(context.Background(), "BTC/USDT")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve waited on a connector that ignores its context")
	}
	require.True(t, ok)
	assert.Equal(t, "fast", pair.Buy.Venue)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.failed["deaf"])
}
