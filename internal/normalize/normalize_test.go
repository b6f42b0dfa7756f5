package normalize

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

var binanceRules = Rules{
	Market:          "binance",
	Source:          "binance",
	InstrumentType:  domain.InstrumentCrypto,
	DefaultCurrency: "USD",
	StripPrefixes:   []string{"LD"},
}

func TestNormalizeSumsFreeAndLocked(t *testing.T) {
	res := Normalize("acc-1", binanceRules, []domain.RawBalance{
		{Asset: "btc", Free: "0.5", Locked: "0.25"},
	})

	if len(res.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(res.Positions))
	}
	p := res.Positions[0]
	if p.Symbol != "BTC" {
		t.Errorf("Symbol = %q, want BTC", p.Symbol)
	}
	if !p.Quantity.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("Quantity = %s, want 0.75", p.Quantity)
	}
	if p.AccountID != "acc-1" || p.Market != "binance" || p.Source != "binance" {
		t.Errorf("identity = %+v, want acc-1/binance/binance", p.Key())
	}
	if p.InstrumentType != domain.InstrumentCrypto {
		t.Errorf("InstrumentType = %q, want crypto", p.InstrumentType)
	}
	if p.Price != nil || p.Valuation != nil {
		t.Error("non-stablecoin should not carry a price")
	}
}

func TestNormalizeDropsNonPositiveQuantities(t *testing.T) {
	res := Normalize("acc-1", binanceRules, []domain.RawBalance{
		{Asset: "ETH", Free: "0", Locked: "0"},
		{Asset: "SOL", Quantity: "-3"},
		{Asset: "ADA", Quantity: "10"},
	})

	if len(res.Positions) != 1 || res.Positions[0].Symbol != "ADA" {
		t.Fatalf("positions = %+v, want only ADA", res.Positions)
	}
	if len(res.Invalid) != 0 {
		t.Errorf("invalid = %d, want 0 (zero balances are not errors)", len(res.Invalid))
	}
}

func TestNormalizeStablecoinShortcut(t *testing.T) {
	res := Normalize("acc-1", Rules{Market: "binance", Source: "binance", DefaultCurrency: "USDT"}, []domain.RawBalance{
		{Asset: "usdt", Quantity: "100"},
	})

	if len(res.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(res.Positions))
	}
	p := res.Positions[0]
	if p.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", p.Currency)
	}
	if p.Price == nil || !p.Price.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Price = %v, want 1", p.Price)
	}
	if p.Valuation == nil || !p.Valuation.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Valuation = %v, want 100", p.Valuation)
	}
}

func TestNormalizeInvalidRecordsAreDroppedNotFatal(t *testing.T) {
	res := Normalize("acc-1", binanceRules, []domain.RawBalance{
		{Asset: "", Quantity: "5"},
		{Asset: "BTC", Quantity: "abc"},
		{Asset: "XRP"},
		{Asset: "DOT", Quantity: "2"},
	})

	if len(res.Invalid) != 3 {
		t.Errorf("invalid = %d, want 3", len(res.Invalid))
	}
	if len(res.Positions) != 1 || res.Positions[0].Symbol != "DOT" {
		t.Errorf("positions = %+v, want only DOT", res.Positions)
	}
}

func TestNormalizeRecordOverridesRules(t *testing.T) {
	res := Normalize("acc-1", Rules{Market: "iol", Source: "iol", InstrumentType: domain.InstrumentEquity, DefaultCurrency: "ARS"}, []domain.RawBalance{
		{Asset: "AAPL", Quantity: "3", Currency: "usd", Market: "IOL", InstrumentType: "fund", AccountID: "other"},
	})

	p := res.Positions[0]
	if p.Currency != "USD" || p.Market != "iol" || p.InstrumentType != domain.InstrumentFund || p.AccountID != "other" {
		t.Errorf("position = %+v, want raw fields to override rules", p)
	}
}

func TestNormalizeMissingCurrency(t *testing.T) {
	res := Normalize("acc-1", Rules{Source: "manual"}, []domain.RawBalance{{Asset: "GOLD", Quantity: "1"}})
	if len(res.Invalid) != 1 {
		t.Errorf("invalid = %d, want 1 for record without currency", len(res.Invalid))
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := []domain.RawBalance{
		{Asset: "LDBTC", Free: "1", Locked: "1"},
		{Asset: "USDC", Quantity: "50"},
		{Asset: "ETH", Quantity: "0"},
	}

	first := Normalize("acc-1", binanceRules, raw)
	second := Normalize("acc-1", binanceRules, raw)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalizing twice differs:\n%+v\n%+v", first, second)
	}
}

func TestSymbol(t *testing.T) {
	tests := []struct {
		name  string
		asset string
		rules Rules
		want  string
	}{
		{"upper-cases", " eth ", Rules{}, "ETH"},
		{"strips earn prefix", "LDBTC", binanceRules, "BTC"},
		{"keeps short ticker", "LDO", binanceRules, "LDO"},
		{"strips suffix", "GGAL.BA", Rules{StripSuffixes: []string{".ba"}}, "GGAL"},
		{"empty", "  ", binanceRules, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Symbol(tt.asset, tt.rules); got != tt.want {
				t.Errorf("Symbol(%q) = %q, want %q", tt.asset, got, tt.want)
			}
		})
	}
}
