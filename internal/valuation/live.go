package valuation

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/mtlprog/holdings/internal/domain"
)

// StaticSource labels rates that come from the configured table.
const StaticSource = "static"

// DefaultRateMaxAge is how long a fetched rate is carried forward when its feed fails.
const DefaultRateMaxAge = 72 * time.Hour

// RateFetcher returns current FX rates from a live feed.
type RateFetcher interface {
	Name() string
	FetchRates(ctx context.Context) ([]domain.FXRate, error)
}

// LiveRates builds the rate table of each run: the static table overlaid with
// rates fetched from live feeds. A failing feed falls back to its last good
// rates while they are younger than the max age.
type LiveRates struct {
	fallback StaticRates
	fetchers []RateFetcher
	maxAge   time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string][]domain.FXRate // fetcher name -> last good rates
}

// LiveOption configures LiveRates.
type LiveOption func(*LiveRates)

// WithRateMaxAge overrides how long fetched rates are carried forward.
func WithRateMaxAge(d time.Duration) LiveOption {
	return func(l *LiveRates) {
		if d > 0 {
			l.maxAge = d
		}
	}
}

// WithRateClock overrides the clock used for carry-forward and undated rates.
func WithRateClock(now func() time.Time) LiveOption {
	return func(l *LiveRates) {
		l.now = now
	}
}

// NewLiveRates creates LiveRates over the static fallback table.
func NewLiveRates(fallback StaticRates, fetchers []RateFetcher, opts ...LiveOption) *LiveRates {
	l := &LiveRates{
		fallback: fallback,
		fetchers: fetchers,
		maxAge:   DefaultRateMaxAge,
		now:      time.Now,
		last:     make(map[string][]domain.FXRate),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rates fetches every feed and returns the table to value one run with, plus
// the rates it holds. Fetched rates replace static ones for the same pair in
// either direction.
func (l *LiveRates) Rates(ctx context.Context) (StaticRates, []domain.FXRate) {
	now := l.now().UTC()

	entries := make(map[string]domain.FXRate, len(l.fallback))
	for key, rate := range l.fallback {
		from, to := splitRateKey(key)
		entries[key] = domain.FXRate{From: from, To: to, Rate: rate, Source: StaticSource, AsOf: now}
	}

	for _, f := range l.fetchers {
		for _, r := range l.fetch(ctx, f, now) {
			delete(entries, rateKey(r.To, r.From))
			entries[rateKey(r.From, r.To)] = r
		}
	}

	table := make(StaticRates, len(entries))
	used := make([]domain.FXRate, 0, len(entries))
	for key, r := range entries {
		table[key] = r.Rate
		used = append(used, r)
	}
	sort.Slice(used, func(i, j int) bool { return rateKey(used[i].From, used[i].To) < rateKey(used[j].From, used[j].To) })
	return table, used
}

func (l *LiveRates) fetch(ctx context.Context, f RateFetcher, now time.Time) []domain.FXRate {
	rates, err := f.FetchRates(ctx)
	rates = lo.Filter(rates, func(r domain.FXRate, _ int) bool {
		return r.From != "" && r.To != "" && r.Rate.IsPositive()
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil && len(rates) > 0 {
		rates = lo.Map(rates, func(r domain.FXRate, _ int) domain.FXRate {
			r.From, r.To = strings.ToUpper(r.From), strings.ToUpper(r.To)
			if r.AsOf.IsZero() {
				r.AsOf = now
			}
			return r
		})
		l.last[f.Name()] = rates
		return rates
	}

	fresh := lo.Filter(l.last[f.Name()], func(r domain.FXRate, _ int) bool {
		return now.Sub(r.AsOf) <= l.maxAge
	})
	slog.Warn("fx feed failed",
		"feed", f.Name(),
		"error", err,
		"carried_forward", len(fresh),
	)
	return fresh
}

func splitRateKey(key string) (string, string) {
	from, to, _ := strings.Cut(key, ":")
	return from, to
}
