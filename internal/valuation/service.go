package valuation

import (
	"time"

	"github.com/mtlprog/holdings/internal/domain"
)

// DefaultStaleAfter is how old a price may be before its valuation is flagged stale.
const DefaultStaleAfter = 72 * time.Hour

// PriceLookup finds the resolved price for a position.
type PriceLookup interface {
	Lookup(p domain.Position) (domain.PriceRecord, bool)
}

// Engine values positions against resolved prices.
type Engine struct {
	staleAfter   time.Duration
	baseCurrency string
	fx           Converter
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithBaseCurrency converts ok valuations into base using fx.
func WithBaseCurrency(base string, fx Converter) Option {
	return func(e *Engine) {
		e.baseCurrency = base
		e.fx = fx
	}
}

// WithClock overrides the clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine. A non-positive staleAfter uses DefaultStaleAfter.
func NewEngine(staleAfter time.Duration, opts ...Option) *Engine {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	e := &Engine{staleAfter: staleAfter, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Value returns one row per position and totals over ok rows. Positions without
// a price are kept as missing_input rows and contribute nothing to totals.
func (e *Engine) Value(positions []domain.Position, prices PriceLookup) ([]domain.ValuationRow, domain.Totals) {
	return e.ValueWith(positions, prices, nil)
}

// ValueWith is Value converting to the base currency with fx, the rate table of
// one run. A nil fx uses the converter given to WithBaseCurrency.
func (e *Engine) ValueWith(positions []domain.Position, prices PriceLookup, fx Converter) ([]domain.ValuationRow, domain.Totals) {
	if fx == nil {
		fx = e.fx
	}
	now := e.now()
	rows := make([]domain.ValuationRow, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, e.valueOne(p, prices, fx, now))
	}

	totals := domain.SumTotals(rows, e.baseCurrency)
	if !totals.TotalBase.IsZero() {
		for i := range rows {
			if rows[i].Status == domain.StatusOK && rows[i].ValueBase != nil {
				rows[i].PortfolioSharePct = domain.PercentOf(*rows[i].ValueBase, totals.TotalBase)
			}
		}
	}

	return rows, totals
}

func (e *Engine) valueOne(p domain.Position, prices PriceLookup, fx Converter, now time.Time) domain.ValuationRow {
	row := domain.ValuationRow{Position: p, Status: domain.StatusMissingInput}

	rec, ok := prices.Lookup(p)
	if !ok {
		return row
	}

	price := rec.Price
	asOf := rec.AsOf
	valuation := p.Quantity.Mul(price)

	row.Price = &price
	row.PriceCurrency = rec.Currency
	row.PriceSource = rec.Source
	row.QualityScore = rec.QualityScore
	row.PriceAsOf = &asOf
	row.Valuation = &valuation
	row.Status = domain.StatusOK
	if now.Sub(asOf) > e.staleAfter {
		row.Status = domain.StatusStale
	}

	if e.baseCurrency != "" && fx != nil {
		if rate, ok := fx.Rate(rec.Currency, e.baseCurrency); ok {
			base := valuation.Mul(rate)
			row.FXRate = &rate
			row.ValueBase = &base
		}
	}
	return row
}
