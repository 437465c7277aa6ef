package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPOptions parameterise a REST venue.
type HTTPOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Options carry everything the builders need. Symbols feed streaming subscriptions.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	BaseURLs  map[string]string
	Symbols   []string
	Stream    StreamOptions
	Uniswap   UniswapOptions
}

func (o Options) http(name string) HTTPOptions {
	return HTTPOptions{BaseURL: o.BaseURLs[name], UserAgent: o.UserAgent, Timeout: o.Timeout}
}

type builder func(opts Options, logger zerolog.Logger) Connector

var builders = map[string]builder{
	"binance": func(o Options, l zerolog.Logger) Connector { return NewBinance(o.http("binance"), l) },
	"bybit":   func(o Options, l zerolog.Logger) Connector { return NewBybit(o.http("bybit"), l) },
	"okx":     func(o Options, l zerolog.Logger) Connector { return NewOKX(o.http("okx"), l) },
	"bingx":   func(o Options, l zerolog.Logger) Connector { return NewBingX(o.http("bingx"), l) },
	"binance-ws": func(o Options, l zerolog.Logger) Connector {
		stream := o.Stream
		if len(stream.Symbols) == 0 {
			stream.Symbols = o.Symbols
		}
		return NewBinanceStream(stream, l)
	},
	"uniswapv2": func(o Options, l zerolog.Logger) Connector {
		uni := o.Uniswap
		if uni.Timeout <= 0 {
			uni.Timeout = o.Timeout
		}
		return NewUniswapV2(uni, l)
	},
}

// Known lists every venue name that can be built.
func Known() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry is the ordered venue set of one scan run. Order defines tie-breaking.
type Registry struct {
	connectors []Connector
}

// NewRegistry wraps already-built connectors, rejecting duplicates.
func NewRegistry(connectors ...Connector) (*Registry, error) {
	seen := make(map[string]struct{}, len(connectors))
	for _, c := range connectors {
		if c == nil {
			return nil, errors.New("venue: nil connector")
		}
		if _, dup := seen[c.Name()]; dup {
			return nil, fmt.Errorf("venue: duplicate connector %s", c.Name())
		}
		seen[c.Name()] = struct{}{}
	}
	return &Registry{connectors: connectors}, nil
}

// Build resolves names against the static builder table.
func Build(names []string, opts Options, logger zerolog.Logger) (*Registry, error) {
	if len(names) == 0 {
		return nil, errors.New("venue: no venues configured")
	}
	connectors := make([]Connector, 0, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		build, ok := builders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownVenue, raw, strings.Join(Known(), ", "))
		}
		connectors = append(connectors, build(opts, logger))
	}
	return NewRegistry(connectors...)
}

// Names returns venue names in query order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.connectors))
	for i, c := range r.connectors {
		names[i] = c.Name()
	}
	return names
}

// Connectors returns the connectors in query order.
func (r *Registry) Connectors() []Connector {
	return append([]Connector(nil), r.connectors...)
}

// Start launches background connections. Already started connectors are closed on failure.
func (r *Registry) Start(ctx context.Context) error {
	started := make([]Connector, 0)
	for _, c := range r.connectors {
		s, ok := c.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(ctx); err != nil {
			closeAll(started)
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		started = append(started, c)
	}
	return nil
}

// Close releases every connector that owns resources.
func (r *Registry) Close() error {
	return closeAll(r.connectors)
}

func closeAll(connectors []Connector) error {
	var errs []error
	for _, c := range connectors {
		if cl, ok := c.(Closer); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", c.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
