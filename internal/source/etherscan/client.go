// Package etherscan reads Ethereum wallet balances through the Etherscan v2 API.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
)

// Name identifies this source in run summaries.
const Name = "etherscan"

// DefaultURL is the v2 multichain endpoint.
const DefaultURL = "https://api.etherscan.io/v2/api"

const (
	mainnetChainID = "1"
	weiDecimals    = 18
	noTokensFound  = "No transactions found"
)

// Client implements source.Adapter for a fixed set of wallet addresses.
type Client struct {
	http      *source.HTTPClient
	apiKey    string
	addresses []string
}

// NewClient creates the adapter. Blank addresses are ignored.
func NewClient(baseURL, apiKey string, addresses []string, opts ...source.ClientOption) *Client {
	return &Client{
		http:   source.NewHTTPClient(Name, baseURL, opts...),
		apiKey: apiKey,
		addresses: lo.Uniq(lo.FilterMap(addresses, func(a string, _ int) (string, bool) {
			a = strings.TrimSpace(a)
			return a, a != ""
		})),
	}
}

func (c *Client) Name() string      { return Name }
func (c *Client) QualityScore() int { return 0 }

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenItem struct {
	Symbol        string      `json:"symbol"`
	TokenSymbol   string      `json:"TokenSymbol"`
	Name          string      `json:"name"`
	TokenName     string      `json:"TokenName"`
	Balance       json.Number `json:"balance"`
	TokenQuantity json.Number `json:"TokenQuantity"`
	Decimals      json.Number `json:"decimals"`
	TokenDivisor  json.Number `json:"TokenDivisor"`
}

// FetchPositions returns the ETH balance and ERC-20 token balances of every
// address. Token list failures are logged and skipped; the call fails only
// when no address answered the ETH balance query.
func (c *Client) FetchPositions(ctx context.Context, accountID string) ([]domain.RawBalance, error) {
	var out []domain.RawBalance
	var lastErr error
	answered := 0

	for _, addr := range c.addresses {
		eth, err := c.ethBalance(ctx, addr)
		if err != nil {
			if errors.Is(err, source.ErrAuth) || errors.Is(err, source.ErrRateLimited) {
				return nil, err
			}
			slog.Error("etherscan balance failed", "address", addr, "error", err)
			lastErr = err
			continue
		}
		answered++
		out = append(out, domain.RawBalance{
			AccountID:   accountID,
			Asset:       "ETH",
			Description: addr,
			Quantity:    eth.String(),
		})

		tokens, err := c.tokenBalances(ctx, addr)
		if err != nil {
			slog.Warn("etherscan token list failed", "address", addr, "error", err)
			continue
		}
		for _, tok := range tokens {
			tok.AccountID = accountID
			out = append(out, tok)
		}
	}

	if answered == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// FetchPrice always reports no pair; wallets are priced by other collaborators.
func (c *Client) FetchPrice(context.Context, string, string) (*domain.PriceQuote, error) {
	return nil, nil
}

func (c *Client) ethBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	result, err := c.call(ctx, "balance", url.Values{"address": {address}, "tag": {"latest"}})
	if err != nil {
		return decimal.Zero, err
	}
	var wei string
	if err := json.Unmarshal(result, &wei); err != nil {
		return decimal.Zero, source.Wrap(Name, "balance", source.ErrTransport, fmt.Errorf("parsing balance: %w", err))
	}
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return decimal.Zero, source.Wrap(Name, "balance", source.ErrTransport, fmt.Errorf("parsing wei %q: %w", wei, err))
	}
	return d.Shift(-weiDecimals), nil
}

func (c *Client) tokenBalances(ctx context.Context, address string) ([]domain.RawBalance, error) {
	result, err := c.call(ctx, "tokenlist", url.Values{"address": {address}})
	if err != nil {
		return nil, err
	}
	var items []tokenItem
	if err := json.Unmarshal(result, &items); err != nil {
		// "No transactions found" carries an empty string or message as result.
		return nil, nil
	}

	return lo.FilterMap(items, func(it tokenItem, _ int) (domain.RawBalance, bool) {
		symbol := strings.ToUpper(strings.TrimSpace(lo.CoalesceOrEmpty(it.Symbol, it.TokenSymbol)))
		raw, err := decimal.NewFromString(lo.CoalesceOrEmpty(it.Balance.String(), it.TokenQuantity.String()))
		if symbol == "" || err != nil {
			return domain.RawBalance{}, false
		}
		places, err := lo.CoalesceOrEmpty(it.Decimals, it.TokenDivisor).Int64()
		if err != nil {
			places = weiDecimals
		}
		qty := raw.Shift(-int32(places))
		if !qty.IsPositive() {
			return domain.RawBalance{}, false
		}
		return domain.RawBalance{
			Asset:       symbol,
			Description: lo.CoalesceOrEmpty(it.Name, it.TokenName),
			Quantity:    qty.String(),
		}, true
	}), nil
}

func (c *Client) call(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("chainid", mainnetChainID)
	params.Set("apikey", c.apiKey)

	var env envelope
	if err := c.http.GetJSON(ctx, "", params, nil, &env); err != nil {
		return nil, err
	}
	if env.Status != "1" && env.Message != noTokensFound {
		var msg string
		_ = json.Unmarshal(env.Result, &msg)
		detail := lo.CoalesceOrEmpty(msg, env.Message)
		kind := source.ErrTransport
		switch lower := strings.ToLower(detail); {
		case strings.Contains(lower, "api key"):
			kind = source.ErrAuth
		case strings.Contains(lower, "rate limit"):
			kind = source.ErrRateLimited
		}
		return nil, source.Wrap(Name, action, kind, errors.New(detail))
	}
	return env.Result, nil
}
