package price

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/mtlprog/holdings/internal/domain"
)

const cacheTTL = 30 * time.Second

// cacheEntry wraps a quote so a "no pair" answer is stored as a non-nil value.
type cacheEntry struct {
	quote *domain.PriceQuote
}

// quoteCache memoizes collaborator answers, including "no pair" answers, for a short time.
// Errors are never cached. A non-positive ttl disables caching.
type quoteCache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func newQuoteCache(ttl time.Duration) *quoteCache {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 12,
		BufferItems: 64,
	})
	if err != nil {
		panic(fmt.Sprintf("price.newQuoteCache: %v", err))
	}
	return &quoteCache{c: c, ttl: ttl}
}

// cacheKey formats: "{collaborator}|{symbol}|{currencyHint}" e.g. "binance|BTC|USDT"
func cacheKey(collaborator, symbol, hint string) string {
	return collaborator + "|" + symbol + "|" + hint
}

func (c *quoteCache) get(key string) (*domain.PriceQuote, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false
	}
	entry, ok := v.(cacheEntry)
	return entry.quote, ok
}

// set stores the answer and waits for the write to become visible.
func (c *quoteCache) set(key string, quote *domain.PriceQuote) {
	if c.ttl <= 0 {
		return
	}
	c.c.SetWithTTL(key, cacheEntry{quote: quote}, 1, c.ttl)
	c.c.Wait()
}
