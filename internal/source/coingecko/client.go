// Package coingecko provides the fallback price collaborator backed by CoinGecko's simple price API.
package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
)

// Name identifies this source in price records.
const Name = "coingecko"

// DefaultURL is the public API root.
const DefaultURL = "https://api.coingecko.com/api/v3"

// SymbolMapping maps symbols to CoinGecko coin IDs.
var SymbolMapping = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
}

// Client fetches spot prices from CoinGecko.
type Client struct {
	http *source.HTTPClient
	now  func() time.Time
}

// NewClient creates a CoinGecko client. apiKey is optional and sent as the demo key header.
func NewClient(baseURL, apiKey string, opts ...source.ClientOption) *Client {
	if apiKey != "" {
		opts = append(opts, source.WithHeader("x-cg-demo-api-key", apiKey))
	}
	return &Client{
		http: source.NewHTTPClient(Name, baseURL, opts...),
		now:  time.Now,
	}
}

func (c *Client) Name() string      { return Name }
func (c *Client) QualityScore() int { return domain.QualityCoinGecko }

// FetchPositions is not supported: CoinGecko holds no balances.
func (c *Client) FetchPositions(context.Context, string) ([]domain.RawBalance, error) {
	return nil, nil
}

// FetchPrice quotes a mapped symbol in the hinted fiat currency. Unmapped symbols yield nil, nil.
func (c *Client) FetchPrice(ctx context.Context, symbol, currencyHint string) (*domain.PriceQuote, error) {
	symbol = strings.ToUpper(symbol)
	vs := strings.ToUpper(lo.CoalesceOrEmpty(currencyHint, domain.USD))
	if _, ok := SymbolMapping[symbol]; !ok {
		return nil, nil
	}

	prices, err := c.FetchPrices(ctx, []string{symbol}, vs)
	if err != nil {
		return nil, err
	}
	price, ok := prices[symbol]
	if !ok || !price.IsPositive() {
		return nil, nil
	}

	return &domain.PriceQuote{
		Symbol:    symbol,
		Currency:  vs,
		Price:     price,
		PriceType: domain.PriceTypeLast,
		Venue:     "COINGECKO",
		AsOf:      c.now().UTC(),
	}, nil
}

// FetchPrices fetches prices in vsCurrency for every mapped symbol given.
// Returns a map of symbol -> price.
func (c *Client) FetchPrices(ctx context.Context, symbols []string, vsCurrency string) (map[string]decimal.Decimal, error) {
	ids := lo.Uniq(lo.FilterMap(symbols, func(s string, _ int) (string, bool) {
		id, ok := SymbolMapping[strings.ToUpper(s)]
		return id, ok
	}))
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}
	vs := strings.ToLower(vsCurrency)

	query := url.Values{
		"ids":           {strings.Join(ids, ",")},
		"vs_currencies": {vs},
	}

	// Parse: {"bitcoin":{"usd":65000.12},"ethereum":{"usd":3100.5}}
	var raw map[string]map[string]decimal.Decimal
	if err := c.http.GetJSON(ctx, "/simple/price", query, nil, &raw); err != nil {
		if errors.Is(err, source.ErrNoData) {
			return map[string]decimal.Decimal{}, nil
		}
		return nil, fmt.Errorf("fetching coingecko prices: %w", err)
	}

	result := make(map[string]decimal.Decimal)
	for _, symbol := range symbols {
		symbol = strings.ToUpper(symbol)
		coinID, ok := SymbolMapping[symbol]
		if !ok {
			continue
		}
		if p, ok := raw[coinID][vs]; ok {
			result[symbol] = p
		}
	}
	return result, nil
}
