package price

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/source"
)

// Resolution is the outcome of resolving prices for a set of positions.
type Resolution struct {
	Prices     map[domain.PriceKey]domain.PriceRecord
	Order      []domain.PriceKey
	Unresolved []string
}

// Lookup returns the resolved price for the position's symbol and currency.
func (r Resolution) Lookup(p domain.Position) (domain.PriceRecord, bool) {
	rec, ok := r.Prices[p.PriceKey()]
	return rec, ok
}

// Records returns the resolved prices in resolution order.
func (r Resolution) Records() []domain.PriceRecord {
	return lo.Map(r.Order, func(k domain.PriceKey, _ int) domain.PriceRecord { return r.Prices[k] })
}

// Resolver determines a price for every (symbol, currency) pair of a position set.
type Resolver struct {
	router   *Router
	fallback source.PriceSource
	allow    map[string]bool
	now      func() time.Time
	cache    *quoteCache
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFallback consults ps in USD for the listed symbols when no primary collaborator prices them.
func WithFallback(ps source.PriceSource, symbols ...string) Option {
	return func(r *Resolver) {
		r.fallback = ps
		r.allow = lo.SliceToMap(symbols, func(s string) (string, bool) { return strings.ToUpper(s), true })
	}
}

// WithClock overrides the clock used for shortcut prices and undated quotes.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithCacheTTL overrides how long collaborator answers are memoized.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = newQuoteCache(ttl)
	}
}

// NewResolver creates a Resolver. The router is required.
func NewResolver(router *Router, opts ...Option) *Resolver {
	if router == nil {
		panic("price.NewResolver: router is nil")
	}
	r := &Resolver{
		router: router,
		allow:  map[string]bool{},
		now:    time.Now,
		cache:  newQuoteCache(cacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a price per distinct (symbol, currency) of positions, plus the
// symbols nothing could price. Collaborator failures never abort resolution.
func (r *Resolver) Resolve(ctx context.Context, positions []domain.Position) Resolution {
	res := Resolution{Prices: make(map[domain.PriceKey]domain.PriceRecord)}

	groups := lo.GroupBy(positions, func(p domain.Position) domain.PriceKey { return p.PriceKey() })
	keys := lo.Uniq(lo.Map(positions, func(p domain.Position, _ int) domain.PriceKey { return p.PriceKey() }))

	for _, key := range keys {
		rec, ok := r.resolveKey(ctx, key, groups[key])
		if !ok {
			slog.Info("no price resolved", "symbol", key.Symbol, "currency", key.Currency)
			res.Unresolved = append(res.Unresolved, key.Symbol)
			continue
		}
		res.Prices[key] = rec
		res.Order = append(res.Order, key)
	}
	res.Unresolved = lo.Uniq(res.Unresolved)

	return res
}

func (r *Resolver) resolveKey(ctx context.Context, key domain.PriceKey, group []domain.Position) (domain.PriceRecord, bool) {
	if p, ok := lo.Find(group, domain.Position.HasPrice); ok {
		return r.shortcutRecord(key, p), true
	}

	var candidates []domain.PriceRecord

	type route struct {
		ps  source.PriceSource
		pos domain.Position
	}
	routes := lo.UniqBy(lo.FilterMap(group, func(p domain.Position, _ int) (route, bool) {
		ps := r.router.Route(p)
		return route{ps: ps, pos: p}, ps != nil
	}), func(rt route) string { return rt.ps.Name() })

	for _, rt := range routes {
		for _, hint := range currencyHints(rt.pos) {
			q, err := r.quote(ctx, rt.ps, key.Symbol, hint)
			if err != nil {
				slog.Warn("price lookup failed",
					"collaborator", rt.ps.Name(),
					"symbol", key.Symbol,
					"hint", hint,
					"kind", source.KindName(err),
					"error", err,
				)
				break
			}
			if q == nil {
				continue
			}
			candidates = append(candidates, r.record(rt.ps, *q, key, hint, rt.pos.AccountID))
			break
		}
	}

	if len(candidates) == 0 && r.fallback != nil && r.allow[key.Symbol] {
		q, err := r.quote(ctx, r.fallback, key.Symbol, domain.USD)
		if err != nil {
			slog.Warn("fallback price lookup failed",
				"collaborator", r.fallback.Name(),
				"symbol", key.Symbol,
				"kind", source.KindName(err),
				"error", err,
			)
		} else if q != nil {
			candidates = append(candidates, r.record(r.fallback, *q, key, domain.USD, group[0].AccountID))
		}
	}

	if len(candidates) == 0 {
		return domain.PriceRecord{}, false
	}
	return pickBest(candidates), true
}

// quote asks ps for a price, memoizing the answer. Quotes that are not positive count as no pair.
func (r *Resolver) quote(ctx context.Context, ps source.PriceSource, symbol, hint string) (*domain.PriceQuote, error) {
	key := cacheKey(ps.Name(), symbol, hint)
	if q, ok := r.cache.get(key); ok {
		return q, nil
	}

	q, err := ps.FetchPrice(ctx, symbol, hint)
	if err != nil {
		return nil, err
	}
	if q != nil && !q.Price.IsPositive() {
		q = nil
	}
	r.cache.set(key, q)
	return q, nil
}

func (r *Resolver) record(ps source.PriceSource, q domain.PriceQuote, key domain.PriceKey, hint, accountID string) domain.PriceRecord {
	rec := domain.PriceRecord{
		Symbol:       key.Symbol,
		Currency:     strings.ToUpper(lo.CoalesceOrEmpty(q.Currency, hint)),
		Venue:        lo.CoalesceOrEmpty(q.Venue, strings.ToUpper(ps.Name())),
		Source:       ps.Name(),
		PriceType:    lo.CoalesceOrEmpty(q.PriceType, domain.PriceTypeLast),
		Price:        q.Price,
		QualityScore: ps.QualityScore(),
		AsOf:         q.AsOf,
	}
	if rec.AsOf.IsZero() {
		rec.AsOf = r.now().UTC()
	}
	if accountID != "" {
		rec.AccountID = &accountID
	}
	return rec
}

func (r *Resolver) shortcutRecord(key domain.PriceKey, p domain.Position) domain.PriceRecord {
	src := "normalizer"
	if domain.IsStablecoin(p.Symbol) {
		src = domain.StablecoinSource
	}
	accountID := p.AccountID
	return domain.PriceRecord{
		Symbol:       key.Symbol,
		Currency:     key.Currency,
		Venue:        strings.ToUpper(p.Market),
		Source:       src,
		PriceType:    domain.PriceTypeManual,
		Price:        *p.Price,
		QualityScore: domain.QualityStablecoin,
		AsOf:         r.now().UTC(),
		AccountID:    &accountID,
	}
}

// pickBest returns the preferred candidate under PriceRecord.Better, so the
// choice does not depend on the order collaborators were queried in.
func pickBest(candidates []domain.PriceRecord) domain.PriceRecord {
	return lo.MaxBy(candidates, func(a, b domain.PriceRecord) bool { return a.Better(b) })
}
