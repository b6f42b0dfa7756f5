// Package source defines the capabilities every holdings and price feed exposes
// to the pipeline, and the error kinds those feeds may fail with.
package source

import (
	"context"

	"github.com/mtlprog/holdings/internal/domain"
)

// PositionSource fetches raw holdings for an account.
type PositionSource interface {
	Name() string
	FetchPositions(ctx context.Context, accountID string) ([]domain.RawBalance, error)
}

// PriceSource quotes a symbol. It returns nil, nil when no pair exists for the
// symbol and currency hint; errors are reserved for transport and auth failures.
type PriceSource interface {
	Name() string
	QualityScore() int
	FetchPrice(ctx context.Context, symbol, currencyHint string) (*domain.PriceQuote, error)
}

// Adapter is a feed exposing both capabilities. Position-only feeds return nil, nil from FetchPrice.
type Adapter interface {
	PositionSource
	PriceSource
}
