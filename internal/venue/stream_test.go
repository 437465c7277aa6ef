package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceStreamCachesDepth(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("streams"), "btcusdt@depth5@100ms")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := `{"stream":"btcusdt@depth5@100ms","data":{"lastUpdateId":7,"bids":[["100.1","2"]],"asks":[["100.2","3"]]}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stream := NewBinanceStream(StreamOptions{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:    []string{"BTC/USDT"},
		StaleAfter: time.Minute,
	}, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, stream.Start(ctx))
	defer stream.Close()

	require.Eventually(t, func() bool {
		_, err := stream.TopOfBook(ctx, "BTC/USDT", 5)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	book, err := stream.TopOfBook(ctx, "BTC/USDT", 5)
	require.NoError(t, err)
	assert.True(t, book.Bids[0].Price.Equal(d("100.1")))
	assert.True(t, book.Asks[0].Size.Equal(d("3")))

	_, err = stream.TopOfBook(ctx, "ETH/USDT", 5)
	assert.ErrorIs(t, err, ErrEmptyBook)
}

func TestBinanceStreamStaleBook(t *testing.T) {
	stream := NewBinanceStream(StreamOptions{Symbols: []string{"BTC/USDT"}, StaleAfter: time.Second}, noopLogger())
	base := time.Now()
	stream.now = func() time.Time { return base }

	var msg streamMessage
	msg.Stream = "btcusdt@depth5@100ms"
	msg.Data.Bids = [][]string{{"1", "1"}}
	msg.Data.Asks = [][]string{{"2", "1"}}
	stream.apply(msg)

	_, err := stream.TopOfBook(context.Background(), "BTC/USDT", 5)
	require.NoError(t, err)

	stream.now = func() time.Time { return base.Add(2 * time.Second) }
	_, err = stream.TopOfBook(context.Background(), "BTC/USDT", 5)
	assert.ErrorIs(t, err, ErrStaleBook)
}

func TestBinanceStreamRequiresSymbols(t *testing.T) {
	stream := NewBinanceStream(StreamOptions{}, noopLogger())
	assert.Error(t, stream.Start(context.Background()))
	assert.NoError(t, stream.Close())
}

func TestReconnectBackoffBounded(t *testing.T) {
	b := newReconnectBackoff()
	for i := 0; i < 10; i++ {
		wait := b.Duration()
		assert.GreaterOrEqual(t, wait, backoffMin)
		assert.LessOrEqual(t, wait, backoffMax)
	}
	assert.Equal(t, backoffMax, b.Max)

	b.Reset()
	assert.Equal(t, backoffMin, b.Duration())
}

func TestBinanceStreamRedialsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if dials.Add(1) == 1 {
			return
		}
		msg := `{"stream":"ethusdt@depth5@100ms","data":{"lastUpdateId":9,"bids":[["2000.1","1"]],"asks":[["2000.2","1"]]}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	stream := NewBinanceStream(StreamOptions{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:    []string{"ETH/USDT"},
		StaleAfter: time.Minute,
	}, noopLogger())
	stream.reconnect.Min = 10 * time.Millisecond
	stream.reconnect.Max = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, stream.Start(ctx))
	defer stream.Close()

	require.Eventually(t, func() bool {
		_, err := stream.TopOfBook(ctx, "ETH/USDT", 5)
		return err == nil
	}, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, dials.Load(), int32(2))
}
