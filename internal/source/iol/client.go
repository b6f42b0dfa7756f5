// Package iol adapts the InvertirOnline brokerage API to the pipeline's source capabilities.
package iol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
)

// Name identifies this source in positions, prices and run summaries.
const Name = "iol"

// DefaultURL is the production API root.
const DefaultURL = "https://api.invertironline.com"

// DefaultCountries are the portfolio markets queried for holdings.
var DefaultCountries = []string{"argentina", "estados_unidos"}

var quoteTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"}

// marketTZ is the zone of quote timestamps published without an offset.
var marketTZ = loadMarketTZ()

func loadMarketTZ() *time.Location {
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	if err != nil {
		return time.FixedZone("ART", -3*60*60)
	}
	return loc
}

// instrument remembers where a symbol trades so it can be quoted later.
type instrument struct {
	country  string
	tipo     string
	currency string
}

// instrumentKey formats: "{SYMBOL}|{country}" e.g. "AAPL|estados_unidos"
func instrumentKey(symbol, country string) string {
	return symbol + "|" + country
}

// Client implements source.Adapter for IOL.
type Client struct {
	http      *source.HTTPClient
	username  string
	password  string
	countries []string
	now       func() time.Time

	mu          sync.Mutex
	token       string
	instruments map[string]instrument
}

// NewClient creates an IOL adapter using password-grant credentials.
func NewClient(baseURL, username, password string, opts ...source.ClientOption) *Client {
	return &Client{
		http:        source.NewHTTPClient(Name, baseURL, opts...),
		username:    username,
		password:    password,
		countries:   DefaultCountries,
		now:         time.Now,
		instruments: make(map[string]instrument),
	}
}

func (c *Client) Name() string      { return Name }
func (c *Client) QualityScore() int { return domain.QualityIOL }

// FetchPositions collects holdings from every configured country portfolio.
// Each holding carries its country as market, so the same ticker held in two
// countries stays two positions. A country that fails is skipped as long as
// another one answers.
func (c *Client) FetchPositions(ctx context.Context, accountID string) ([]domain.RawBalance, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.RawBalance
	var lastErr error
	answered := 0
	for _, country := range c.countries {
		doc, err := c.getDocument(ctx, "/api/v2/portafolio", url.Values{"pais": {country}}, token)
		if err != nil {
			if errors.Is(err, source.ErrAuth) {
				return nil, err
			}
			slog.Warn("iol portfolio fetch failed", "country", country, "error", err)
			lastErr = err
			continue
		}
		answered++

		for _, item := range firstList(doc, "$.tenencias", "$.activos", "$.portafolio") {
			rb, tipo, ok := parseHolding(item)
			if !ok {
				continue
			}
			rb.AccountID = accountID
			rb.Market = country
			out = append(out, rb)
			c.remember(strings.ToUpper(rb.Asset), instrument{country: country, tipo: tipo, currency: rb.Currency})
		}
	}

	if answered == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// FetchPrice quotes a symbol from the Cotizaciones endpoint, using the market
// and panel learned from the last portfolio fetch. When the symbol is held in
// several countries, the one whose holding currency matches the hint is quoted.
func (c *Client) FetchPrice(ctx context.Context, symbol, currencyHint string) (*domain.PriceQuote, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	inst := c.lookup(strings.ToUpper(symbol), strings.ToUpper(currencyHint))
	path := fmt.Sprintf("/api/v2/Cotizaciones/%s/%s/%s",
		url.PathEscape(inst.country), url.PathEscape(symbol), url.PathEscape(guessPanel(inst.tipo)))

	doc, err := c.getDocument(ctx, path, nil, token)
	if err != nil {
		if errors.Is(err, source.ErrNoData) {
			return nil, nil
		}
		return nil, err
	}

	q := firstObject(doc, "$.cotizacion", "$.data", "$.quote", "$.instrumento")
	if q == nil {
		return nil, nil
	}
	price, err := domain.ParseAmount(firstString(q, "$.ultimo", "$.ultimoPrecio", "$.precio", "$.last", "$.valor"))
	if err != nil || !price.IsPositive() {
		return nil, nil
	}

	ccy := NormalizeCurrency(firstString(q, "$.moneda", "$.divisa"))
	if ccy == "" {
		ccy = strings.ToUpper(currencyHint)
	}
	if ccy == "" {
		ccy = "ARS"
	}

	return &domain.PriceQuote{
		Symbol:    strings.ToUpper(symbol),
		Currency:  ccy,
		Price:     price,
		PriceType: domain.PriceTypeLast,
		Venue:     strings.ToUpper(inst.country),
		AsOf:      c.quoteTime(firstString(q, "$.fechaHora", "$.fecha")),
	}, nil
}

// parseHolding reads one portfolio item in either the nested "titulo" or the flat shape.
func parseHolding(item any) (domain.RawBalance, string, bool) {
	symbol := firstString(item, "$.titulo.simbolo", "$.titulo.ticker", "$.simbolo", "$.ticker", "$.codigo")
	if symbol == "" {
		return domain.RawBalance{}, "", false
	}
	tipo := firstString(item, "$.titulo.tipo", "$.tipoInstrumento", "$.instrumento", "$.tipo")

	return domain.RawBalance{
		Asset:          symbol,
		Description:    firstString(item, "$.titulo.descripcion", "$.descripcion"),
		Quantity:       firstString(item, "$.cantidad", "$.cantidadNominal"),
		Currency:       NormalizeCurrency(firstString(item, "$.moneda", "$.divisa", "$.currency", "$.titulo.moneda", "$.titulo.divisa", "$.titulo.currency")),
		InstrumentType: string(instrumentType(tipo)),
	}, tipo, true
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	form := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"grant_type": {"password"},
	}
	if err := c.http.PostFormJSON(ctx, "/token", form, &resp); err != nil {
		if errors.Is(err, source.ErrRateLimited) || isNetwork(err) {
			return "", err
		}
		return "", source.Wrap(Name, "token", source.ErrAuth, err)
	}
	if resp.AccessToken == "" {
		return "", source.Wrap(Name, "token", source.ErrAuth, errors.New("empty access token"))
	}
	c.token = resp.AccessToken
	return c.token, nil
}

func (c *Client) getDocument(ctx context.Context, path string, query url.Values, token string) (any, error) {
	body, err := c.http.Get(ctx, path, query, http.Header{"Authorization": {"Bearer " + token}})
	if err != nil {
		if errors.Is(err, source.ErrAuth) {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
		}
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, source.Wrap(Name, path, source.ErrTransport, fmt.Errorf("parsing JSON: %w", err))
	}
	return doc, nil
}

func (c *Client) remember(symbol string, inst instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[instrumentKey(symbol, inst.country)] = inst
}

func (c *Client) lookup(symbol, currencyHint string) instrument {
	c.mu.Lock()
	defer c.mu.Unlock()

	var held []instrument
	for _, country := range c.countries {
		if inst, ok := c.instruments[instrumentKey(symbol, country)]; ok {
			held = append(held, inst)
		}
	}
	for _, inst := range held {
		if currencyHint != "" && inst.currency == currencyHint {
			return inst
		}
	}
	if len(held) > 0 {
		return held[0]
	}
	return instrument{country: DefaultCountries[0]}
}

// quoteTime parses a quote timestamp. Timestamps without an offset are
// Buenos Aires local time.
func (c *Client) quoteTime(s string) time.Time {
	for _, layout := range quoteTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, marketTZ); err == nil {
			return t.UTC()
		}
	}
	return c.now().UTC()
}

// isNetwork reports whether err failed before the server answered.
func isNetwork(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
