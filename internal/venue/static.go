package venue

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"spread-radar/internal/market"
)

// Static serves fixed books. It backs dry runs and alert simulations.
type Static struct {
	name string

	mu    sync.RWMutex
	books map[string]market.Book
	errs  map[string]error
}

// NewStatic builds a static connector.
func NewStatic(name string) *Static {
	return &Static{name: name, books: make(map[string]market.Book), errs: make(map[string]error)}
}

// SetBook installs the book returned for symbol.
func (s *Static) SetBook(symbol string, book market.Book) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[strings.ToUpper(symbol)] = book
	return s
}

// SetQuote installs a one-level book.
func (s *Static) SetQuote(symbol string, bid, bidSize, ask, askSize decimal.Decimal) *Static {
	return s.SetBook(symbol, market.Book{
		Bids: []market.Level{{Price: bid, Size: bidSize}},
		Asks: []market.Level{{Price: ask, Size: askSize}},
	})
}

// SetError makes every request for symbol fail with err.
func (s *Static) SetError(symbol string, err error) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[strings.ToUpper(symbol)] = err
	return s
}

func (s *Static) Name() string { return s.name }

// TopOfBook returns the installed book, ErrEmptyBook when none is installed.
func (s *Static) TopOfBook(ctx context.Context, symbol string, _ int) (market.Book, error) {
	if err := ctx.Err(); err != nil {
		return market.Book{}, wrapErr(s.name, symbol, err)
	}

	key := strings.ToUpper(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.errs[key]; ok {
		return market.Book{}, wrapErr(s.name, symbol, err)
	}
	book, ok := s.books[key]
	if !ok {
		return market.Book{}, wrapErr(s.name, symbol, ErrEmptyBook)
	}
	return book, nil
}

var _ Connector = (*Static)(nil)
