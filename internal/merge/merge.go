// Package merge deduplicates positions gathered from every source of a run.
package merge

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// Result holds the deduplicated positions and how many each source contributed.
type Result struct {
	Positions []domain.Position
	PerSource map[string]int
}

// Merge groups positions by (account, symbol, market, source), summing quantities.
// Output order follows the first appearance of each key. A normalization-time price
// survives only when every member of its group carries the same one; otherwise it is
// cleared and left for the price resolver.
func Merge(lists ...[]domain.Position) Result {
	all := lo.Flatten(lists)

	order := lo.Uniq(lo.Map(all, func(p domain.Position, _ int) domain.PositionKey {
		return p.Key()
	}))
	groups := lo.GroupBy(all, func(p domain.Position) domain.PositionKey { return p.Key() })

	merged := lo.Map(order, func(key domain.PositionKey, _ int) domain.Position {
		return consolidate(groups[key])
	})

	perSource := lo.CountValuesBy(merged, func(p domain.Position) string { return p.Source })

	return Result{Positions: merged, PerSource: perSource}
}

func consolidate(group []domain.Position) domain.Position {
	out := group[0]
	out.Quantity = lo.Reduce(group, func(acc decimal.Decimal, p domain.Position, _ int) decimal.Decimal {
		return acc.Add(p.Quantity)
	}, decimal.Zero)
	if out.Description == "" {
		if d, ok := lo.Find(group, func(p domain.Position) bool { return p.Description != "" }); ok {
			out.Description = d.Description
		}
	}

	pricesAgree := lo.EveryBy(group, func(p domain.Position) bool {
		return p.Price != nil && domain.EqualPtr(p.Price, group[0].Price)
	})
	if !pricesAgree {
		out.Price = nil
		out.Valuation = nil
		return out
	}

	out.Price = domain.DecimalPtr(*group[0].Price)
	out.Valuation = domain.DecimalPtr(out.Quantity.Mul(*out.Price))
	return out
}
