package market

import "strings"

// DefaultSymbols is used when no symbol list is supplied.
var DefaultSymbols = []string{
	"BTC/USDT", "ETH/USDT", "SOL/USDT", "XRP/USDT", "DOGE/USDT",
	"ADA/USDT", "BNB/USDT", "TON/USDT", "LINK/USDT", "AVAX/USDT",
}

// ParseSymbols splits a comma, space or newline separated list and upper-cases each entry.
// An empty list yields DefaultSymbols.
func ParseSymbols(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
	symbols := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.ToUpper(strings.TrimSpace(f)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return append([]string(nil), DefaultSymbols...)
	}
	return symbols
}

// SplitSymbol splits "BASE/QUOTE". ok is false when the symbol has no separator.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(strings.ToUpper(strings.TrimSpace(symbol)), "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}
