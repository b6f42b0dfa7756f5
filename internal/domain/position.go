package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InstrumentType classifies what a position holds.
type InstrumentType string

const (
	InstrumentEquity InstrumentType = "equity"
	InstrumentCrypto InstrumentType = "crypto"
	InstrumentFund   InstrumentType = "fund"
	InstrumentCash   InstrumentType = "cash"
	InstrumentOther  InstrumentType = "other"
)

// ParseInstrumentType maps a free-form label to an InstrumentType, falling back to other.
func ParseInstrumentType(s string) InstrumentType {
	switch t := InstrumentType(strings.ToLower(strings.TrimSpace(s))); t {
	case InstrumentEquity, InstrumentCrypto, InstrumentFund, InstrumentCash:
		return t
	default:
		return InstrumentOther
	}
}

// RawBalance is a single holding as reported by a source adapter, before normalization.
// Numeric fields are kept as the source reported them.
type RawBalance struct {
	AccountID      string `json:"account_id,omitempty"`
	Asset          string `json:"asset"`
	Description    string `json:"description,omitempty"`
	Free           string `json:"free,omitempty"`
	Locked         string `json:"locked,omitempty"`
	Quantity       string `json:"quantity,omitempty"`
	Currency       string `json:"currency,omitempty"`
	Market         string `json:"market,omitempty"`
	Source         string `json:"source,omitempty"`
	InstrumentType string `json:"instrument_type,omitempty"`
}

// PositionKey identifies a position for deduplication.
type PositionKey struct {
	AccountID string
	Symbol    string
	Market    string
	Source    string
}

// Position is a normalized holding.
type Position struct {
	AccountID      string           `json:"account_id"`
	Symbol         string           `json:"symbol"`
	Description    string           `json:"description,omitempty"`
	InstrumentType InstrumentType   `json:"instrument_type"`
	Market         string           `json:"market"`
	Source         string           `json:"source"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Currency       string           `json:"currency"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	Valuation      *decimal.Decimal `json:"valuation,omitempty"`
}

// Key returns the deduplication key of the position.
func (p Position) Key() PositionKey {
	return PositionKey{AccountID: p.AccountID, Symbol: p.Symbol, Market: p.Market, Source: p.Source}
}

// PriceKey returns the price lookup key of the position.
func (p Position) PriceKey() PriceKey {
	return PriceKey{Symbol: p.Symbol, Currency: p.Currency}
}

// HasPrice reports whether a price was assigned at normalization time.
func (p Position) HasPrice() bool {
	return p.Price != nil
}
