package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// sharePrecision is the number of decimal places kept for portfolio share percentages.
const sharePrecision = 4

// SafeParse parses a string into a decimal, returning zero for invalid or empty input.
func SafeParse(value string) decimal.Decimal {
	d, err := ParseAmount(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseAmount parses a source-reported number. Empty input is zero; anything
// else that is not a decimal is an error.
func ParseAmount(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing amount %q: %w", value, err)
	}
	return d, nil
}

// DecimalPtr returns a pointer to a copy of d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// EqualPtr reports whether two optional decimals hold the same value.
func EqualPtr(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// PercentOf returns part/total*100 rounded to four places, or nil when total is zero.
func PercentOf(part, total decimal.Decimal) *decimal.Decimal {
	if total.IsZero() {
		return nil
	}
	pct := part.Div(total).Mul(decimal.NewFromInt(100)).Round(sharePrecision)
	return &pct
}

// FormatAmount rounds to the given number of places and strips trailing zeros.
func FormatAmount(d decimal.Decimal, places int32) string {
	s := d.Round(places).StringFixed(places)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
