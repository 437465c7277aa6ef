package alerting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spread-radar/internal/market"
)

// Alert 封装一次扫描周期触发的告警上下文。
type Alert struct {
	At           time.Time
	RunID        string
	ThresholdBps decimal.Decimal
	Rows         []market.OpportunityRow
}

// Message is the operator-facing status line.
func (a Alert) Message() string {
	return fmt.Sprintf("ALERT: NET >= %s bps", FormatThreshold(a.ThresholdBps))
}

// FormatThreshold renders a threshold the way operators type it, keeping one decimal for whole numbers.
func FormatThreshold(bps decimal.Decimal) string {
	s := bps.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }

// Bell rings the terminal bell.
type Bell struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBell writes BEL bytes to w, typically the controlling terminal.
func NewBell(w io.Writer) *Bell {
	return &Bell{w: w}
}

func (b *Bell) Notify(context.Context, Alert) error {
	if b == nil || b.w == nil {
		return errors.New("bell: no terminal")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.w, "\a")
	return err
}

// Fallback wraps a best-effort notifier. Failures are logged and never returned.
type Fallback struct {
	primary Notifier
	logger  zerolog.Logger
}

// NewFallback 构造降级告警器，primary 为空时退化为 Nop。
func NewFallback(primary Notifier, logger zerolog.Logger) *Fallback {
	if primary == nil {
		primary = Nop{}
	}
	return &Fallback{primary: primary, logger: logger.With().Str("component", "alert_fallback").Logger()}
}

func (f *Fallback) Notify(ctx context.Context, alert Alert) error {
	if err := f.primary.Notify(ctx, alert); err != nil {
		f.logger.Debug().Err(err).Msg("alert signal unavailable, continuing without it")
	}
	return nil
}

// Multi fans an alert out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*Bell)(nil)
	_ Notifier = (*Fallback)(nil)
	_ Notifier = Multi(nil)
)
