package manual

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/mtlprog/holdings/internal/domain"
)

// Source serves positions from a curated file. It quotes nothing.
type Source struct {
	name string
	path string
}

// NewSource creates a file-backed position source. name labels it in run summaries.
func NewSource(name, path string) *Source {
	return &Source{name: name, path: path}
}

func (s *Source) Name() string      { return s.name }
func (s *Source) QualityScore() int { return 0 }

// FetchPositions reads the file on every call so edits apply to the next run.
func (s *Source) FetchPositions(_ context.Context, accountID string) ([]domain.RawBalance, error) {
	entries, err := ReadFile(s.path, "positions", "holdings")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}

	return lo.FilterMap(entries, func(e Entry, _ int) (domain.RawBalance, bool) {
		if !e.BelongsTo(accountID) {
			return domain.RawBalance{}, false
		}
		return domain.RawBalance{
			AccountID:      accountID,
			Asset:          strings.TrimSpace(e.Symbol),
			Description:    e.Label(),
			Quantity:       e.Quantity,
			Currency:       e.Currency,
			Market:         e.Market,
			Source:         e.Source,
			InstrumentType: e.InstrumentType,
		}, true
	}), nil
}

// FetchPrice always reports no pair.
func (s *Source) FetchPrice(context.Context, string, string) (*domain.PriceQuote, error) {
	return nil, nil
}
