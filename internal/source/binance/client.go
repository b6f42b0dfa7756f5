// Package binance adapts the Binance spot API to the pipeline's source capabilities.
package binance

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/samber/lo"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
)

// Name identifies this source in positions, prices and run summaries.
const Name = "binance"

const (
	codeTooManyRequests = -1003
	codeInvalidSymbol   = -1121
)

var authCodes = map[int64]bool{
	-1022: true, // invalid signature
	-2008: true, // invalid api-key id
	-2014: true, // api-key format invalid
	-2015: true, // invalid api-key, IP, or permissions
}

// Client implements source.Adapter on top of go-binance.
type Client struct {
	api *gobinance.Client
	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.api.BaseURL = url
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.api.HTTPClient = hc
	}
}

// NewClient creates a Binance adapter. Keys are only needed for FetchPositions.
func NewClient(apiKey, secretKey string, opts ...Option) *Client {
	c := &Client{
		api: gobinance.NewClient(apiKey, secretKey),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string      { return Name }
func (c *Client) QualityScore() int { return domain.QualityBinance }

// FetchPositions returns every non-empty spot balance, free and locked reported separately.
func (c *Client) FetchPositions(ctx context.Context, accountID string) ([]domain.RawBalance, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify(err, "account")
	}

	return lo.FilterMap(acct.Balances, func(b gobinance.Balance, _ int) (domain.RawBalance, bool) {
		empty := domain.SafeParse(b.Free).IsZero() && domain.SafeParse(b.Locked).IsZero()
		return domain.RawBalance{
			AccountID: accountID,
			Asset:     b.Asset,
			Free:      b.Free,
			Locked:    b.Locked,
		}, !empty
	}), nil
}

// FetchPrice quotes SYMBOL+hint from the public ticker. An unknown pair yields nil, nil.
func (c *Client) FetchPrice(ctx context.Context, symbol, currencyHint string) (*domain.PriceQuote, error) {
	hint := strings.ToUpper(currencyHint)
	pair := strings.ToUpper(symbol) + hint

	prices, err := c.api.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
			return nil, nil
		}
		return nil, classify(err, "ticker")
	}

	sp, ok := lo.Find(prices, func(p *gobinance.SymbolPrice) bool { return p != nil && p.Symbol == pair })
	if !ok {
		return nil, nil
	}
	price, err := domain.ParseAmount(sp.Price)
	if err != nil || !price.IsPositive() {
		return nil, nil
	}

	return &domain.PriceQuote{
		Symbol:    strings.ToUpper(symbol),
		Currency:  hint,
		Price:     price,
		PriceType: domain.PriceTypeLast,
		Venue:     "BINANCE",
		AsOf:      c.now().UTC(),
	}, nil
}

func classify(err error, op string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case authCodes[apiErr.Code]:
			return source.Wrap(Name, op, source.ErrAuth, err)
		case apiErr.Code == codeTooManyRequests:
			return source.Wrap(Name, op, source.ErrRateLimited, err)
		}
	}
	return source.Wrap(Name, op, source.ErrTransport, err)
}
