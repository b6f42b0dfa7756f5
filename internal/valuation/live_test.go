package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

type mockFetcher struct {
	rates []domain.FXRate
	err   error
	calls int
}

func (m *mockFetcher) Name() string { return "mock" }

func (m *mockFetcher) FetchRates(context.Context) ([]domain.FXRate, error) {
	m.calls++
	return m.rates, m.err
}

func usdArs(rate string, asOf time.Time) domain.FXRate {
	return domain.FXRate{From: "USD", To: "ARS", Rate: decimal.RequireFromString(rate), Source: "dolarapi_blue_venta", AsOf: asOf}
}

func TestLiveRatesOverlayStaticTable(t *testing.T) {
	static := StaticRates{"USDT:USD": decimal.NewFromInt(1), "ARS:USD": decimal.RequireFromString("0.002")}
	fetcher := &mockFetcher{rates: []domain.FXRate{usdArs("1000", now)}}
	live := NewLiveRates(static, []RateFetcher{fetcher}, WithRateClock(func() time.Time { return now }))

	table, used := live.Rates(context.Background())

	r, ok := table.Rate("ARS", "USD")
	if !ok || !r.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("Rate(ARS, USD) = %s, %v, want 0.001 from the live rate", r, ok)
	}
	if r, ok := table.Rate("USDT", "USD"); !ok || !r.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Rate(USDT, USD) = %s, %v, want 1", r, ok)
	}

	if len(used) != 2 {
		t.Fatalf("used = %+v, want 2 rates", used)
	}
	if used[0].From != "USD" || used[0].To != "ARS" || used[0].Source != "dolarapi_blue_venta" {
		t.Errorf("used[0] = %+v, want live USD->ARS", used[0])
	}
	if used[1].From != "USDT" || used[1].Source != StaticSource || !used[1].AsOf.Equal(now) {
		t.Errorf("used[1] = %+v, want static USDT->USD", used[1])
	}
}

func TestLiveRatesCarryForwardWithinMaxAge(t *testing.T) {
	clock := now
	fetcher := &mockFetcher{rates: []domain.FXRate{usdArs("1000", now)}}
	live := NewLiveRates(StaticRates{}, []RateFetcher{fetcher},
		WithRateClock(func() time.Time { return clock }),
		WithRateMaxAge(24*time.Hour),
	)

	live.Rates(context.Background())

	fetcher.rates, fetcher.err = nil, errors.New("feed down")
	clock = now.Add(12 * time.Hour)
	table, used := live.Rates(context.Background())
	if _, ok := table.Rate("ARS", "USD"); !ok || len(used) != 1 {
		t.Errorf("within max age: table = %v, used = %v, want the carried-forward rate", table, used)
	}

	clock = now.Add(25 * time.Hour)
	table, used = live.Rates(context.Background())
	if _, ok := table.Rate("ARS", "USD"); ok || len(used) != 0 {
		t.Errorf("past max age: table = %v, used = %v, want no rate", table, used)
	}
	if fetcher.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", fetcher.calls)
	}
}

func TestLiveRatesDropInvalidRates(t *testing.T) {
	fetcher := &mockFetcher{rates: []domain.FXRate{
		{From: "usd", To: "ars", Rate: decimal.NewFromInt(900)},
		{From: "USD", To: "EUR", Rate: decimal.Zero},
		{From: "", To: "ARS", Rate: decimal.NewFromInt(1)},
	}}
	live := NewLiveRates(nil, []RateFetcher{fetcher}, WithRateClock(func() time.Time { return now }))

	table, used := live.Rates(context.Background())

	if len(used) != 1 || used[0].From != "USD" || used[0].To != "ARS" || !used[0].AsOf.Equal(now) {
		t.Errorf("used = %+v, want one upper-cased USD->ARS dated now", used)
	}
	if _, ok := table.Rate("USD", "EUR"); ok {
		t.Error("zero rate should be dropped")
	}
}

func TestValueWithRunRates(t *testing.T) {
	positions := []domain.Position{position("GGAL", domain.InstrumentEquity, "10", "ARS")}
	prices := mapLookup{{Symbol: "GGAL", Currency: "ARS"}: record("GGAL", "ARS", "2000", now)}

	e := NewEngine(time.Hour, WithBaseCurrency("USD", StaticRates{}), WithClock(func() time.Time { return now }))

	_, totals := e.Value(positions, prices)
	if totals.UnconvertedCount != 1 || !totals.TotalBase.IsZero() {
		t.Errorf("default converter: totals = %+v, want unconverted", totals)
	}

	rows, totals := e.ValueWith(positions, prices, StaticRates{"USD:ARS": decimal.NewFromInt(1000)})
	if !totals.TotalBase.Equal(decimal.NewFromInt(20)) || totals.UnconvertedCount != 0 {
		t.Errorf("run rates: TotalBase = %s unconverted = %d, want 20 and 0", totals.TotalBase, totals.UnconvertedCount)
	}
	if rows[0].FXRate == nil || !rows[0].FXRate.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("FXRate = %v, want 0.001", rows[0].FXRate)
	}
}
