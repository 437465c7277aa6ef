package venue

import (
	"context"
	"errors"
	"fmt"

	"spread-radar/internal/market"
)

// DefaultLevels is the depth requested from every venue; only the top level is used.
const DefaultLevels = 5

var (
	// ErrUnknownVenue is returned when a configured name has no connector.
	ErrUnknownVenue = errors.New("venue: unknown venue")
	// ErrEmptyBook means the venue answered without a two-sided book.
	ErrEmptyBook = errors.New("venue: empty or one-sided book")
	// ErrUnsupportedSymbol means the symbol cannot be mapped to the venue's format.
	ErrUnsupportedSymbol = errors.New("venue: unsupported symbol")
	// ErrStaleBook is returned by streaming venues when the cached book is too old.
	ErrStaleBook = errors.New("venue: stale book")
)

// Connector fetches the top of book of one venue.
type Connector interface {
	Name() string
	TopOfBook(ctx context.Context, symbol string, levels int) (market.Book, error)
}

// Starter is implemented by connectors that hold background connections.
type Starter interface {
	Start(ctx context.Context) error
}

// Closer is implemented by connectors that own resources.
type Closer interface {
	Close() error
}

// Error records a failed venue request for one symbol.
type Error struct {
	Venue  string
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Venue, e.Symbol, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(venue, symbol string, err error) error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return err
	}
	return &Error{Venue: venue, Symbol: symbol, Err: err}
}
