// Package snapshot persists pipeline results as immutable per-account snapshots.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mtlprog/holdings/internal/domain"
)

// ErrEmptyAccount is returned when an operation is called without an account id.
var ErrEmptyAccount = errors.New("account id is required")

// Runner produces a snapshot for an account.
type Runner interface {
	Run(ctx context.Context, accountID string, at time.Time) (domain.Snapshot, error)
}

// Service generates, writes and reads snapshots.
type Service struct {
	runner       Runner
	repo         Repository
	baseCurrency string
}

// Option configures a Service.
type Option func(*Service)

// WithBaseCurrency names the currency of ValueBase in rows handed to Write.
func WithBaseCurrency(base string) Option {
	return func(s *Service) {
		s.baseCurrency = strings.ToUpper(strings.TrimSpace(base))
	}
}

// NewService creates a snapshot Service. Both dependencies are required.
func NewService(runner Runner, repo Repository, opts ...Option) *Service {
	if runner == nil {
		panic("snapshot.NewService: runner is nil")
	}
	if repo == nil {
		panic("snapshot.NewService: repo is nil")
	}
	s := &Service{runner: runner, repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs the pipeline for the account and stores the result.
func (s *Service) Generate(ctx context.Context, accountID string, at time.Time) (domain.Snapshot, error) {
	snap, err := s.runner.Run(ctx, accountID, at)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("running pipeline: %w", err)
	}
	if err := s.repo.Save(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap, nil
}

// Write stores already-computed results as a new snapshot and returns its id.
// Totals are derived from the rows so they always agree with them.
func (s *Service) Write(ctx context.Context, accountID string, positions []domain.Position, prices []domain.PriceRecord, valuations []domain.ValuationRow, at time.Time) (uuid.UUID, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return uuid.Nil, ErrEmptyAccount
	}

	snap := domain.Snapshot{
		ID:         uuid.New(),
		AccountID:  accountID,
		TakenAt:    at.UTC(),
		Positions:  positions,
		Prices:     prices,
		Valuations: valuations,
		Totals:     domain.SumTotals(valuations, s.baseCurrency),
		Unresolved: lo.Uniq(lo.FilterMap(valuations, func(r domain.ValuationRow, _ int) (string, bool) {
			return r.Position.Symbol, r.Status == domain.StatusMissingInput
		})),
	}

	if err := s.repo.Save(ctx, snap); err != nil {
		return uuid.Nil, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap.ID, nil
}

// Latest returns the most recent snapshot for the account, or nil when none exists yet.
func (s *Service) Latest(ctx context.Context, accountID string) (*domain.Snapshot, error) {
	return s.repo.Latest(ctx, accountID)
}

// List returns snapshot headers for the account, newest first.
func (s *Service) List(ctx context.Context, accountID string, limit int) ([]Header, error) {
	return s.repo.List(ctx, accountID, ClampLimit(limit))
}
