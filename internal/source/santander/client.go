// Package santander serves Santander Argentina mutual-fund holdings from a
// curated file and prices them with the bank's published share values.
package santander

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
	"github.com/mtlprog/holdings/internal/source/manual"
)

// Name identifies this source in positions, prices and run summaries.
const Name = "santander"

// DefaultURL is the public site hosting the fund detail endpoint.
const DefaultURL = "https://www.santander.com.ar"

const symbolPrefix = "SANTANDER_"

var shareDateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "02/01/2006"}

// apiHeaders are sent with every NAV request; the public endpoint rejects bare clients.
var apiHeaders = map[string]string{
	"accept":           "application/json, text/plain, */*",
	"origin":           DefaultURL,
	"referer":          DefaultURL + "/personas/inversiones/informacion-fondos",
	"channel-name":     "webpublic",
	"x-san-segment-id": "2",
}

// Client implements source.Adapter for Santander funds.
type Client struct {
	http         *source.HTTPClient
	holdingsPath string
	now          func() time.Time

	mu    sync.Mutex
	funds map[string]string // symbol -> fund id
}

// NewClient creates the adapter. holdingsPath points at the curated holdings file.
func NewClient(baseURL, holdingsPath string, opts ...source.ClientOption) *Client {
	for k, v := range apiHeaders {
		opts = append([]source.ClientOption{source.WithHeader(k, v)}, opts...)
	}
	return &Client{
		http:         source.NewHTTPClient(Name, baseURL, opts...),
		holdingsPath: holdingsPath,
		now:          time.Now,
		funds:        make(map[string]string),
	}
}

func (c *Client) Name() string      { return Name }
func (c *Client) QualityScore() int { return domain.QualitySantander }

// FetchPositions reads fund holdings from the curated file. Entries without a
// fund id are dropped; the symbol defaults to SANTANDER_<fund id>.
func (c *Client) FetchPositions(_ context.Context, accountID string) ([]domain.RawBalance, error) {
	entries, err := manual.ReadFile(c.holdingsPath, "positions", "funds")
	if err != nil {
		return nil, fmt.Errorf("santander holdings: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return lo.FilterMap(entries, func(e manual.Entry, _ int) (domain.RawBalance, bool) {
		fundID := strings.TrimSpace(lo.CoalesceOrEmpty(e.FundID, e.ID))
		if fundID == "" || !e.BelongsTo(accountID) {
			return domain.RawBalance{}, false
		}
		symbol := strings.ToUpper(strings.TrimSpace(lo.CoalesceOrEmpty(e.Symbol, symbolPrefix+fundID)))
		c.funds[symbol] = fundID

		return domain.RawBalance{
			AccountID:      accountID,
			Asset:          symbol,
			Description:    e.Label(),
			Quantity:       e.Quantity,
			Currency:       e.Currency,
			Market:         e.Market,
			Source:         e.Source,
			InstrumentType: string(domain.InstrumentFund),
		}, true
	}), nil
}

type detailResponse struct {
	Data struct {
		CurrentShareValue     *decimal.Decimal `json:"currentShareValue"`
		CurrentShareValueDate string           `json:"currentShareValueDate"`
		Name                  string           `json:"name"`
	} `json:"data"`
}

// FetchPrice returns the latest published share value for a known fund.
func (c *Client) FetchPrice(ctx context.Context, symbol, currencyHint string) (*domain.PriceQuote, error) {
	symbol = strings.ToUpper(symbol)
	fundID, ok := c.fundID(symbol)
	if !ok {
		return nil, nil
	}

	path := fmt.Sprintf("/fondosInformacion/funds/%s/detail", url.PathEscape(fundID))
	header := http.Header{"x-san-correlationid": {uuid.NewString()}}

	var resp detailResponse
	if err := c.http.GetJSON(ctx, path, nil, header, &resp); err != nil {
		if errors.Is(err, source.ErrNoData) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching santander fund %s: %w", fundID, err)
	}
	if resp.Data.CurrentShareValue == nil || !resp.Data.CurrentShareValue.IsPositive() {
		return nil, nil
	}

	return &domain.PriceQuote{
		Symbol:    symbol,
		Currency:  strings.ToUpper(lo.CoalesceOrEmpty(currencyHint, "ARS")),
		Price:     *resp.Data.CurrentShareValue,
		PriceType: domain.PriceTypeNAV,
		Venue:     "SANTANDER",
		AsOf:      c.shareDate(resp.Data.CurrentShareValueDate),
	}, nil
}

func (c *Client) fundID(symbol string) (string, bool) {
	c.mu.Lock()
	id, ok := c.funds[symbol]
	c.mu.Unlock()
	if ok {
		return id, true
	}
	if id, found := strings.CutPrefix(symbol, symbolPrefix); found && id != "" {
		return id, true
	}
	return "", false
}

func (c *Client) shareDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range shareDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return c.now().UTC()
}
