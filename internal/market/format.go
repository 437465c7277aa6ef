package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the local wall-clock layout used in exports and tables.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	bpsPerUnit = decimal.NewFromInt(10_000)
	midBand    = decimal.NewFromInt(2)
)

// Class is the display bucket of a net spread.
type Class string

const (
	ClassPositive Class = "pos"
	ClassMid      Class = "mid"
	ClassNegative Class = "neg"
)

// Classify maps a net spread in bps to its display bucket: positive above zero,
// mid inside [-2, 2], negative otherwise.
func Classify(netBps decimal.Decimal) Class {
	switch {
	case netBps.IsPositive():
		return ClassPositive
	case netBps.GreaterThanOrEqual(midBand.Neg()) && netBps.LessThanOrEqual(midBand):
		return ClassMid
	default:
		return ClassNegative
	}
}

// BpsToFraction converts basis points into a plain fraction.
func BpsToFraction(bps decimal.Decimal) decimal.Decimal {
	return bps.Div(bpsPerUnit)
}

// FractionToBps converts a fraction into basis points.
func FractionToBps(frac decimal.Decimal) decimal.Decimal {
	return frac.Mul(bpsPerUnit)
}

// FormatPrice renders a price with 8 decimals.
func FormatPrice(d decimal.Decimal) string { return d.StringFixed(8) }

// FormatUSD renders a USD amount with the given number of decimals.
func FormatUSD(d decimal.Decimal, places int32) string { return d.StringFixed(places) }

// FormatBps renders a fraction as basis points with one decimal.
func FormatBps(frac decimal.Decimal) string { return FractionToBps(frac).StringFixed(1) }

// FormatTimestamp renders t in local time.
func FormatTimestamp(t time.Time) string { return t.Local().Format(TimestampLayout) }

// ParseLevel parses a string price/size pair as sent by most venue APIs.
func ParseLevel(price, size string) (Level, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return Level{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	s, err := decimal.NewFromString(strings.TrimSpace(size))
	if err != nil {
		return Level{}, fmt.Errorf("parse size %q: %w", size, err)
	}
	return Level{Price: p, Size: s}, nil
}

// ParseLevels parses [[price, size, ...], ...] rows, ignoring trailing columns.
func ParseLevels(rows [][]string) ([]Level, error) {
	levels := make([]Level, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("malformed level %v", row)
		}
		lvl, err := ParseLevel(row[0], row[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}
