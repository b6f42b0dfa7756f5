// Package pipeline runs one valuation pass for an account: fetch every
// configured source, normalize, merge, resolve prices and value the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/merge"
	"github.com/mtlprog/holdings/internal/normalize"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/source"
	"github.com/mtlprog/holdings/internal/valuation"
)

const (
	DefaultFetchConcurrency = 4
	DefaultSourceTimeout    = 60 * time.Second
)

// ErrEmptyAccount is returned when Run is called without an account id.
var ErrEmptyAccount = errors.New("account id is required")

// SourceSettings is one entry of the explicit source list a run works from.
type SourceSettings struct {
	Adapter        source.PositionSource
	Rules          normalize.Rules
	Enabled        bool
	DisabledReason string
}

// Name returns the adapter name, or the rules' source label when no adapter is set.
func (s SourceSettings) Name() string {
	if s.Adapter != nil {
		return s.Adapter.Name()
	}
	return s.Rules.Source
}

// PriceResolver resolves prices for merged positions.
type PriceResolver interface {
	Resolve(ctx context.Context, positions []domain.Position) price.Resolution
}

// Valuer values positions against resolved prices. A nil fx uses the valuer's own converter.
type Valuer interface {
	ValueWith(positions []domain.Position, prices valuation.PriceLookup, fx valuation.Converter) ([]domain.ValuationRow, domain.Totals)
}

// RateProvider supplies the FX table of one run and the rates it holds.
type RateProvider interface {
	Rates(ctx context.Context) (valuation.StaticRates, []domain.FXRate)
}

// Config tunes source fetching. FX is optional; without it the valuer's
// converter is used and no rates are recorded.
type Config struct {
	FetchConcurrency int
	SourceTimeout    time.Duration
	FX               RateProvider
}

// Service orchestrates a pipeline run.
type Service struct {
	sources  []SourceSettings
	resolver PriceResolver
	valuer   Valuer
	cfg      Config
}

// NewService creates a pipeline Service. resolver and valuer are required;
// zero Config fields take their defaults.
func NewService(sources []SourceSettings, resolver PriceResolver, valuer Valuer, cfg Config) *Service {
	if resolver == nil {
		panic("pipeline.NewService: resolver is nil")
	}
	if valuer == nil {
		panic("pipeline.NewService: valuer is nil")
	}
	for i, s := range sources {
		if s.Enabled && s.Adapter == nil {
			panic(fmt.Sprintf("pipeline.NewService: source %d (%s) is enabled without an adapter", i, s.Rules.Source))
		}
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = DefaultFetchConcurrency
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	return &Service{sources: sources, resolver: resolver, valuer: valuer, cfg: cfg}
}

// Sources returns the configured source list.
func (s *Service) Sources() []SourceSettings {
	return s.sources
}

type fetchResult struct {
	raw     []domain.RawBalance
	err     error
	elapsed time.Duration
}

// Run builds a snapshot for accountID taken at at. Source failures are recorded
// in the run summary and never fail the run; only cancellation of ctx does.
func (s *Service) Run(ctx context.Context, accountID string, at time.Time) (domain.Snapshot, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.Snapshot{}, ErrEmptyAccount
	}

	results := s.fetchAll(ctx, accountID)
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("fetching sources: %w", err)
	}

	summary := domain.RunSummary{}
	lists := make([][]domain.Position, 0, len(s.sources))

	for i, src := range s.sources {
		name := src.Name()
		if !src.Enabled {
			slog.Info("source skipped", "source", name, "reason", src.DisabledReason)
			summary.Sources = append(summary.Sources, domain.SourceOutcome{
				Name:   name,
				Status: domain.SourceSkipped,
				Reason: src.DisabledReason,
			})
			continue
		}

		res := results[i]
		if res.err != nil {
			kind := source.KindName(res.err)
			slog.Warn("source failed", "source", name, "kind", kind, "error", res.err, "elapsed", res.elapsed)
			summary.Sources = append(summary.Sources, domain.SourceOutcome{
				Name:      name,
				Status:    domain.SourceFailed,
				Reason:    res.err.Error(),
				ErrorKind: kind,
			})
			continue
		}

		rules := src.Rules
		if rules.Source == "" {
			rules.Source = name
		}
		norm := normalize.Normalize(accountID, rules, res.raw)
		summary.InvalidRecords += len(norm.Invalid)
		lists = append(lists, norm.Positions)

		slog.Info("source loaded",
			"source", name,
			"raw", len(res.raw),
			"positions", len(norm.Positions),
			"invalid", len(norm.Invalid),
			"elapsed", res.elapsed,
		)
		summary.Sources = append(summary.Sources, domain.SourceOutcome{
			Name:    name,
			Status:  domain.SourceOK,
			Records: len(norm.Positions),
		})
	}

	merged := merge.Merge(lists...)
	resolution := s.resolver.Resolve(ctx, merged.Positions)
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, fmt.Errorf("resolving prices: %w", err)
	}
	var (
		fx      valuation.Converter
		fxRates []domain.FXRate
	)
	if s.cfg.FX != nil {
		var table valuation.StaticRates
		table, fxRates = s.cfg.FX.Rates(ctx)
		fx = table
	}
	rows, totals := s.valuer.ValueWith(merged.Positions, resolution, fx)

	summary.PositionsBySource = merged.PerSource
	summary.Positions = len(merged.Positions)
	summary.PricesResolved = len(resolution.Order)
	summary.PricesMissing = len(resolution.Unresolved)

	snap := domain.Snapshot{
		ID:         uuid.New(),
		AccountID:  accountID,
		TakenAt:    at.UTC(),
		Positions:  merged.Positions,
		Prices:     resolution.Records(),
		Valuations: rows,
		Totals:     totals,
		Unresolved: resolution.Unresolved,
		FXRates:    fxRates,
		Summary:    summary,
	}

	ok, skipped, failed := summary.SourceCounts()
	slog.Info("pipeline run complete",
		"account", accountID,
		"sources_ok", ok,
		"sources_skipped", skipped,
		"sources_failed", failed,
		"positions", summary.Positions,
		"prices_resolved", summary.PricesResolved,
		"prices_missing", summary.PricesMissing,
		"fx_rates", len(fxRates),
	)

	return snap, nil
}

// fetchAll queries every enabled source concurrently. Results are indexed like
// s.sources so merge order does not depend on which source answers first.
// A panicking adapter is recorded as a transport failure of that source.
func (s *Service) fetchAll(ctx context.Context, accountID string) []fetchResult {
	results := make([]fetchResult, len(s.sources))

	var g errgroup.Group
	g.SetLimit(s.cfg.FetchConcurrency)
	for i, src := range s.sources {
		if !src.Enabled {
			continue
		}
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
			defer cancel()

			start := time.Now()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("source panicked", "source", src.Name(), "panic", r)
					results[i] = fetchResult{
						err:     source.Wrap(src.Name(), "fetch", source.ErrTransport, fmt.Errorf("panic: %v", r)),
						elapsed: time.Since(start),
					}
				}
			}()
			raw, err := src.Adapter.FetchPositions(fctx, accountID)
			results[i] = fetchResult{raw: raw, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
