package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the valuation outcome of a single position.
type Status string

const (
	StatusOK           Status = "ok"
	StatusMissingInput Status = "missing_input"
	StatusStale        Status = "stale"
)

// ValuationRow joins a position with its resolved price.
type ValuationRow struct {
	Position          Position         `json:"position"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	PriceCurrency     string           `json:"price_currency,omitempty"`
	PriceSource       string           `json:"price_source,omitempty"`
	QualityScore      int              `json:"quality_score,omitempty"`
	PriceAsOf         *time.Time       `json:"price_as_of,omitempty"`
	Valuation         *decimal.Decimal `json:"valuation,omitempty"`
	FXRate            *decimal.Decimal `json:"fx_rate,omitempty"`
	ValueBase         *decimal.Decimal `json:"value_base,omitempty"`
	PortfolioSharePct *decimal.Decimal `json:"portfolio_share_pct,omitempty"`
	Status            Status           `json:"status"`
}

// Totals aggregates valuations of ok rows.
type Totals struct {
	ByCurrency        map[string]decimal.Decimal                    `json:"by_currency"`
	ByInstrumentType  map[InstrumentType]map[string]decimal.Decimal `json:"by_instrument_type"`
	BaseCurrency      string                                        `json:"base_currency,omitempty"`
	TotalBase         decimal.Decimal                               `json:"total_base"`
	Positions         int                                           `json:"positions"`
	OKCount           int                                           `json:"ok_count"`
	StaleCount        int                                           `json:"stale_count"`
	MissingInputCount int                                           `json:"missing_input_count"`
	UnconvertedCount  int                                           `json:"unconverted_count"`
}

// SumTotals aggregates rows into Totals. Only ok rows contribute to the
// currency sums; an ok row without a base value counts as unconverted when
// base is set.
func SumTotals(rows []ValuationRow, base string) Totals {
	t := Totals{
		ByCurrency:       make(map[string]decimal.Decimal),
		ByInstrumentType: make(map[InstrumentType]map[string]decimal.Decimal),
		BaseCurrency:     base,
		TotalBase:        decimal.Zero,
		Positions:        len(rows),
	}

	for _, r := range rows {
		switch r.Status {
		case StatusMissingInput:
			t.MissingInputCount++
			continue
		case StatusStale:
			t.StaleCount++
			continue
		}

		t.OKCount++
		if r.Valuation == nil {
			continue
		}
		ccy := r.PriceCurrency
		t.ByCurrency[ccy] = t.ByCurrency[ccy].Add(*r.Valuation)

		byType, ok := t.ByInstrumentType[r.Position.InstrumentType]
		if !ok {
			byType = make(map[string]decimal.Decimal)
			t.ByInstrumentType[r.Position.InstrumentType] = byType
		}
		byType[ccy] = byType[ccy].Add(*r.Valuation)

		if r.ValueBase != nil {
			t.TotalBase = t.TotalBase.Add(*r.ValueBase)
		} else if base != "" {
			t.UnconvertedCount++
		}
	}

	return t
}
