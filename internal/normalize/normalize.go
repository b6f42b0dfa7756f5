// Package normalize turns raw source balances into positions.
package normalize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// Rules describe how one source's raw balances map onto positions.
// Fields set on a RawBalance take precedence over the defaults here.
type Rules struct {
	Market          string
	Source          string
	InstrumentType  domain.InstrumentType
	DefaultCurrency string
	StripPrefixes   []string
	StripSuffixes   []string
}

// InvalidRecordError reports a raw record that could not be normalized.
type InvalidRecordError struct {
	Source string
	Asset  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record from %s (asset %q): %s", e.Source, e.Asset, e.Reason)
}

// Result is the output of normalizing one source's batch.
type Result struct {
	Positions []domain.Position
	Invalid   []*InvalidRecordError
}

// Normalize converts raw balances into positions. Records with a non-positive
// quantity are dropped silently; malformed records are dropped and reported.
func Normalize(accountID string, rules Rules, raw []domain.RawBalance) Result {
	var res Result
	for _, rb := range raw {
		pos, ok, err := normalizeOne(accountID, rules, rb)
		if err != nil {
			slog.Warn("dropping invalid record", "source", err.Source, "asset", err.Asset, "reason", err.Reason)
			res.Invalid = append(res.Invalid, err)
			continue
		}
		if ok {
			res.Positions = append(res.Positions, pos)
		}
	}
	return res
}

func normalizeOne(accountID string, rules Rules, rb domain.RawBalance) (domain.Position, bool, *InvalidRecordError) {
	src := firstNonEmpty(rb.Source, rules.Source)
	invalid := func(reason string) *InvalidRecordError {
		return &InvalidRecordError{Source: src, Asset: rb.Asset, Reason: reason}
	}

	symbol := Symbol(rb.Asset, rules)
	if symbol == "" {
		return domain.Position{}, false, invalid("empty symbol")
	}

	qty, err := quantity(rb)
	if err != nil {
		return domain.Position{}, false, invalid(err.Error())
	}
	if !qty.IsPositive() {
		return domain.Position{}, false, nil
	}

	instrument := rules.InstrumentType
	if rb.InstrumentType != "" {
		instrument = domain.ParseInstrumentType(rb.InstrumentType)
	}
	if instrument == "" {
		instrument = domain.InstrumentOther
	}

	pos := domain.Position{
		AccountID:      firstNonEmpty(rb.AccountID, accountID),
		Symbol:         symbol,
		Description:    strings.TrimSpace(rb.Description),
		InstrumentType: instrument,
		Market:         strings.ToLower(firstNonEmpty(rb.Market, rules.Market)),
		Source:         strings.ToLower(src),
		Quantity:       qty,
		Currency:       strings.ToUpper(strings.TrimSpace(firstNonEmpty(rb.Currency, rules.DefaultCurrency))),
	}

	if domain.IsStablecoin(symbol) {
		pos.Currency = domain.USD
		pos.Price = domain.DecimalPtr(decimal.NewFromInt(1))
		pos.Valuation = domain.DecimalPtr(qty)
	}
	if pos.Currency == "" {
		return domain.Position{}, false, invalid("no currency")
	}

	return pos, true, nil
}

// minSymbolLen keeps short tickers such as LDO intact under an LD prefix rule.
const minSymbolLen = 2

// Symbol upper-cases an asset code and strips the source's configured affixes.
// An affix is only stripped when at least minSymbolLen characters remain.
func Symbol(asset string, rules Rules) string {
	s := strings.ToUpper(strings.TrimSpace(asset))
	for _, p := range rules.StripPrefixes {
		p = strings.ToUpper(p)
		if len(s)-len(p) >= minSymbolLen && strings.HasPrefix(s, p) {
			s = strings.TrimPrefix(s, p)
			break
		}
	}
	for _, suf := range rules.StripSuffixes {
		suf = strings.ToUpper(suf)
		if len(s)-len(suf) >= minSymbolLen && strings.HasSuffix(s, suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	return s
}

// quantity prefers an explicit quantity and otherwise sums free and locked balances.
func quantity(rb domain.RawBalance) (decimal.Decimal, error) {
	if strings.TrimSpace(rb.Quantity) != "" {
		return domain.ParseAmount(rb.Quantity)
	}
	if strings.TrimSpace(rb.Free) == "" && strings.TrimSpace(rb.Locked) == "" {
		return decimal.Zero, fmt.Errorf("no quantity reported")
	}
	free, err := domain.ParseAmount(rb.Free)
	if err != nil {
		return decimal.Zero, err
	}
	locked, err := domain.ParseAmount(rb.Locked)
	if err != nil {
		return decimal.Zero, err
	}
	return free.Add(locked), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
