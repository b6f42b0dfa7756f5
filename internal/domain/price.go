package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceType describes how a price was obtained.
type PriceType string

const (
	PriceTypeLast   PriceType = "last"
	PriceTypeNAV    PriceType = "nav"
	PriceTypeManual PriceType = "manual"
)

// Quality scores by provenance. Higher wins.
const (
	QualityStablecoin = 100
	QualityIOL        = 100
	QualitySantander  = 95
	QualityBinance    = 90
	QualityCoinGecko  = 85
)

// StablecoinSource is the provenance recorded for stablecoin parity prices.
const StablecoinSource = "stablecoin_parity"

// USD is the currency stablecoin positions are denominated in.
const USD = "USD"

var stablecoins = map[string]bool{
	"USDT":  true,
	"USDC":  true,
	"BUSD":  true,
	"FDUSD": true,
}

// IsStablecoin reports whether the symbol is priced at parity with USD.
func IsStablecoin(symbol string) bool {
	return stablecoins[symbol]
}

// PriceKey identifies a resolved price: the symbol and the currency of the positions it prices.
type PriceKey struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

func (k PriceKey) String() string {
	return k.Symbol + "/" + k.Currency
}

// PriceQuote is a price returned by a pricing collaborator.
type PriceQuote struct {
	Symbol    string          `json:"symbol"`
	Currency  string          `json:"currency"`
	Price     decimal.Decimal `json:"price"`
	PriceType PriceType       `json:"price_type"`
	Venue     string          `json:"venue"`
	AsOf      time.Time       `json:"as_of"`
}

// PriceRecord is a resolved price with provenance.
type PriceRecord struct {
	Symbol       string          `json:"symbol"`
	Currency     string          `json:"currency"`
	Venue        string          `json:"venue"`
	Source       string          `json:"source"`
	PriceType    PriceType       `json:"price_type"`
	Price        decimal.Decimal `json:"price"`
	QualityScore int             `json:"quality_score"`
	AsOf         time.Time       `json:"as_of"`
	AccountID    *string         `json:"account_id,omitempty"`
}

// Better reports whether r should be preferred over other: higher quality first,
// then the more recent quote, then the lexically smaller source name.
func (r PriceRecord) Better(other PriceRecord) bool {
	if r.QualityScore != other.QualityScore {
		return r.QualityScore > other.QualityScore
	}
	if !r.AsOf.Equal(other.AsOf) {
		return r.AsOf.After(other.AsOf)
	}
	return r.Source < other.Source
}
