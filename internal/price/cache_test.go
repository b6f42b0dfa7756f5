package price

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

func TestCacheKey(t *testing.T) {
	if got := cacheKey("binance", "BTC", "USDT"); got != "binance|BTC|USDT" {
		t.Errorf("cacheKey() = %q, want binance|BTC|USDT", got)
	}
}

func TestCacheHitAndMiss(t *testing.T) {
	c := newQuoteCache(cacheTTL)

	q := &domain.PriceQuote{Symbol: "BTC", Currency: "USDT", Price: decimal.NewFromInt(60000)}
	c.set("k", q)

	got, ok := c.get("k")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if !got.Price.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("cached price = %s, want 60000", got.Price)
	}

	if _, ok := c.get("missing-key"); ok {
		t.Error("expected cache miss for missing key")
	}
}

func TestCacheRemembersNoPair(t *testing.T) {
	c := newQuoteCache(cacheTTL)
	c.set("nopair", nil)

	got, ok := c.get("nopair")
	if !ok {
		t.Fatal("expected cached no-pair answer")
	}
	if got != nil {
		t.Errorf("cached quote = %+v, want nil", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := newQuoteCache(20 * time.Millisecond)
	c.set("expire-key", &domain.PriceQuote{Price: decimal.NewFromInt(2)})

	if _, ok := c.get("expire-key"); !ok {
		t.Fatal("expected cache hit before expiry")
	}
	time.Sleep(60 * time.Millisecond)

	if _, ok := c.get("expire-key"); ok {
		t.Error("expected cache miss for expired entry")
	}
}

func TestCacheDisabled(t *testing.T) {
	c := newQuoteCache(0)
	c.set("k", &domain.PriceQuote{Price: decimal.NewFromInt(1)})

	if _, ok := c.get("k"); ok {
		t.Error("expected no caching with zero ttl")
	}
}
