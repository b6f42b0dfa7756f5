package valuation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Converter provides the rate to convert one unit of from into to.
type Converter interface {
	Rate(from, to string) (decimal.Decimal, bool)
}

// StaticRates is a fixed FX table keyed by "FROM:TO".
type StaticRates map[string]decimal.Decimal

// ParseRates parses a comma-separated list such as "USDT:USD=1,ARS:USD=0.00085".
func ParseRates(raw string) (StaticRates, error) {
	rates := StaticRates{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("fx rate %q: missing '='", part)
		}
		from, to, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return nil, fmt.Errorf("fx rate %q: expected FROM:TO=rate", part)
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("fx rate %q: %w", part, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("fx rate %q: rate must be positive", part)
		}
		rates[rateKey(from, to)] = rate
	}
	return rates, nil
}

// Rate returns the direct rate, or the inverse of the opposite rate.
func (s StaticRates) Rate(from, to string) (decimal.Decimal, bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if r, ok := s[rateKey(from, to)]; ok {
		return r, true
	}
	if r, ok := s[rateKey(to, from)]; ok {
		return decimal.NewFromInt(1).Div(r), true
	}
	return decimal.Zero, false
}

func rateKey(from, to string) string {
	return strings.ToUpper(strings.TrimSpace(from)) + ":" + strings.ToUpper(strings.TrimSpace(to))
}
