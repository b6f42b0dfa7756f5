// Package dolarapi fetches the USD/ARS exchange rate published by DolarApi.
package dolarapi

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

// Name identifies this feed in logs.
const Name = "dolarapi"

// DefaultURL is the public API root.
const DefaultURL = "https://dolarapi.com"

// DefaultCasa is the quote house whose selling rate is used.
const DefaultCasa = "blue"

// Client fetches one dollar quote house from DolarApi.
type Client struct {
	http *source.HTTPClient
	casa string
	now  func() time.Time
}

// NewClient creates a DolarApi client for the given quote house (blue, oficial, bolsa, ...).
func NewClient(baseURL, casa string, opts ...source.ClientOption) *Client {
	return &Client{
		http: source.NewHTTPClient(Name, baseURL, opts...),
		casa: strings.ToLower(lo.CoalesceOrEmpty(strings.TrimSpace(casa), DefaultCasa)),
		now:  time.Now,
	}
}

func (c *Client) Name() string { return Name }

// RateSource labels the rates this client produces, e.g. "dolarapi_blue_venta".
func (c *Client) RateSource() string {
	return Name + "_" + c.casa + "_venta"
}

type quoteResponse struct {
	Moneda             string           `json:"moneda"`
	Casa               string           `json:"casa"`
	Compra             *decimal.Decimal `json:"compra"`
	Venta              *decimal.Decimal `json:"venta"`
	FechaActualizacion string           `json:"fechaActualizacion"`
}

// FetchRates returns the selling rate as USD -> ARS. ARS -> USD is its inverse.
func (c *Client) FetchRates(ctx context.Context) ([]domain.FXRate, error) {
	// Parse: {"moneda":"USD","casa":"blue","compra":1180,"venta":1200,"fechaActualizacion":"2025-03-10T14:57:00.000Z"}
	var resp quoteResponse
	path := "/v1/dolares/" + url.PathEscape(c.casa)
	if err := c.http.GetJSON(ctx, path, nil, nil, &resp); err != nil {
		if errors.Is(err, source.ErrNoData) {
			return nil, source.Wrap(Name, path, source.ErrTransport, fmt.Errorf("no quote for casa %q", c.casa))
		}
		return nil, fmt.Errorf("fetching dolarapi %s quote: %w", c.casa, err)
	}
	if resp.Venta == nil || !resp.Venta.IsPositive() {
		return nil, source.Wrap(Name, path, source.ErrTransport, errors.New("quote without a positive selling rate"))
	}

	return []domain.FXRate{{
		From:   strings.ToUpper(lo.CoalesceOrEmpty(resp.Moneda, domain.USD)),
		To:     "ARS",
		Rate:   *resp.Venta,
		Source: c.RateSource(),
		AsOf:   c.asOf(resp.FechaActualizacion),
	}}, nil
}

func (c *Client) asOf(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s)); err == nil {
		return t.UTC()
	}
	return c.now().UTC()
}
