package price

import (
	"strings"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
)

// Router selects the primary pricing collaborator for a position,
// first by market and then by instrument type.
type Router struct {
	byMarket map[string]source.PriceSource
	byType   map[domain.InstrumentType]source.PriceSource
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		byMarket: make(map[string]source.PriceSource),
		byType:   make(map[domain.InstrumentType]source.PriceSource),
	}
}

// Market routes positions of the given market to ps.
func (r *Router) Market(market string, ps source.PriceSource) *Router {
	if ps != nil {
		r.byMarket[strings.ToLower(market)] = ps
	}
	return r
}

// Instrument routes positions of the given instrument type to ps when no market route matches.
func (r *Router) Instrument(t domain.InstrumentType, ps source.PriceSource) *Router {
	if ps != nil {
		r.byType[t] = ps
	}
	return r
}

// Route returns the primary collaborator for p, or nil if none is configured.
func (r *Router) Route(p domain.Position) source.PriceSource {
	if ps, ok := r.byMarket[p.Market]; ok {
		return ps
	}
	return r.byType[p.InstrumentType]
}

// currencyHints returns the quote currencies to try for p, in order.
// Crypto trades against USDT first, then USD; anything else is quoted in its own currency.
func currencyHints(p domain.Position) []string {
	if p.InstrumentType == domain.InstrumentCrypto {
		return []string{"USDT", domain.USD}
	}
	return []string{p.Currency}
}
