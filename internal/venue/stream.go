package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"spread-radar/internal/market"
)

const (
	defaultStreamURL  = "wss://stream.binance.com:9443/stream"
	defaultStaleAfter = 5 * time.Second
	backoffMin        = time.Second
	backoffMax        = 15 * time.Second
)

// StreamOptions parameterise the Binance partial-depth stream.
type StreamOptions struct {
	URL              string
	Symbols          []string
	StaleAfter       time.Duration
	HandshakeTimeout time.Duration
}

type streamEntry struct {
	at   time.Time
	book market.Book
}

// BinanceStream keeps the latest depth5 snapshot of every subscribed symbol in memory
// and serves TopOfBook from that cache.
type BinanceStream struct {
	opts    StreamOptions
	dialer  *websocket.Dialer
	logger  zerolog.Logger
	now     func() time.Time
	streams map[string]string

	// reconnect paces redials after the connection drops.
	reconnect *backoff.Backoff

	mu    sync.RWMutex
	books map[string]streamEntry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBinanceStream builds the streaming connector. Start must be called before use.
func NewBinanceStream(opts StreamOptions, logger zerolog.Logger) *BinanceStream {
	if opts.URL == "" {
		opts.URL = defaultStreamURL
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 15 * time.Second
	}

	streams := make(map[string]string, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		if name, ok := streamName(sym); ok {
			streams[name] = strings.ToUpper(sym)
		}
	}

	return &BinanceStream{
		opts:      opts,
		dialer:    &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger:    logger.With().Str("component", "venue_binance_ws").Logger(),
		now:       time.Now,
		streams:   streams,
		reconnect: newReconnectBackoff(),
		books:     make(map[string]streamEntry),
	}
}

func newReconnectBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: backoffMin, Max: backoffMax, Factor: 2, Jitter: true}
}

func (s *BinanceStream) Name() string { return "binance-ws" }

// Start dials the combined stream and keeps it alive until ctx ends or Close is called.
func (s *BinanceStream) Start(ctx context.Context) error {
	if len(s.streams) == 0 {
		return errors.New("binance-ws: no symbols to subscribe")
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(runCtx, conn)
	return nil
}

// Close stops the reader and waits for it to exit.
func (s *BinanceStream) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// TopOfBook serves the cached book for symbol.
func (s *BinanceStream) TopOfBook(ctx context.Context, symbol string, levels int) (market.Book, error) {
	name, ok := streamName(symbol)
	if !ok {
		return market.Book{}, wrapErr(s.Name(), symbol, ErrUnsupportedSymbol)
	}

	s.mu.RLock()
	entry, exists := s.books[name]
	s.mu.RUnlock()

	if !exists {
		return market.Book{}, wrapErr(s.Name(), symbol, ErrEmptyBook)
	}
	if s.now().Sub(entry.at) > s.opts.StaleAfter {
		return market.Book{}, wrapErr(s.Name(), symbol, ErrStaleBook)
	}

	book := entry.book
	if n := clampLevels(levels); len(book.Bids) > n || len(book.Asks) > n {
		book = market.Book{Bids: book.Bids[:min(n, len(book.Bids))], Asks: book.Asks[:min(n, len(book.Asks))]}
	}
	return book, nil
}

func (s *BinanceStream) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(s.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	names := make([]string, 0, len(s.streams))
	for name := range s.streams {
		names = append(names, name+"@depth5@100ms")
	}
	q := endpoint.Query()
	q.Set("streams", strings.Join(names, "/"))
	endpoint.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("binance-ws dial: %w", err)
	}
	s.logger.Info().Int("streams", len(names)).Msg("stream connected")
	return conn, nil
}

func (s *BinanceStream) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.done)

	for {
		s.readLoop(ctx, conn)
		_ = conn.Close()

		for {
			wait := s.reconnect.Duration()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			next, err := s.dial(ctx)
			if err == nil {
				conn = next
				s.reconnect.Reset()
				break
			}
			s.logger.Warn().Err(err).Dur("backoff", wait).Msg("stream reconnect failed")
		}
	}
}

func (s *BinanceStream) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("stream read failed")
			}
			return
		}
		var msg streamMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		s.apply(msg)
	}
}

func (s *BinanceStream) apply(msg streamMessage) {
	name, _, _ := strings.Cut(msg.Stream, "@")
	if _, ok := s.streams[name]; !ok {
		return
	}
	bids, err := market.ParseLevels(msg.Data.Bids)
	if err != nil {
		return
	}
	asks, err := market.ParseLevels(msg.Data.Asks)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.books[name] = streamEntry{at: s.now(), book: market.Book{Bids: bids, Asks: asks}}
	s.mu.Unlock()
}

type streamMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		LastUpdateID int64      `json:"lastUpdateId"`
		Bids         [][]string `json:"bids"`
		Asks         [][]string `json:"asks"`
	} `json:"data"`
}

func streamName(symbol string) (string, bool) {
	base, quote, ok := market.SplitSymbol(symbol)
	if !ok {
		return "", false
	}
	return strings.ToLower(base + quote), true
}

var (
	_ Connector = (*BinanceStream)(nil)
	_ Starter   = (*BinanceStream)(nil)
	_ Closer    = (*BinanceStream)(nil)
)
