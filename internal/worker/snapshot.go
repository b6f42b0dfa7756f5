package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/holdings/internal/domain"
)

// SnapshotGenerator defines the interface for generating snapshots.
type SnapshotGenerator interface {
	Generate(ctx context.Context, accountID string, at time.Time) (domain.Snapshot, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	Name() string
	AfterSnapshot(ctx context.Context, snap domain.Snapshot) error
}

// RunHooks calls every hook in order. A failing hook is logged and does not stop the others.
func RunHooks(ctx context.Context, snap domain.Snapshot, hooks ...AfterSnapshotHook) {
	for _, h := range hooks {
		if err := h.AfterSnapshot(ctx, snap); err != nil {
			slog.Error("after-snapshot hook failed", "hook", h.Name(), "account", snap.AccountID, "error", err)
			continue
		}
		slog.Info("after-snapshot hook completed", "hook", h.Name(), "account", snap.AccountID)
	}
}

// SnapshotWorker periodically generates snapshots for a set of accounts.
type SnapshotWorker struct {
	generator SnapshotGenerator
	accounts  []string
	interval  time.Duration
	hooks     []AfterSnapshotHook
	now       func() time.Time
}

// NewSnapshotWorker creates a new SnapshotWorker with optional post-generation hooks.
func NewSnapshotWorker(generator SnapshotGenerator, accounts []string, interval time.Duration, hooks ...AfterSnapshotHook) *SnapshotWorker {
	if generator == nil {
		panic("worker.NewSnapshotWorker: generator is nil")
	}
	return &SnapshotWorker{
		generator: generator,
		accounts:  accounts,
		interval:  interval,
		hooks:     hooks,
		now:       time.Now,
	}
}

// runOnce generates one snapshot per account. Snapshot timestamps are truncated
// to the second so a run is identified by a stable key.
func (w *SnapshotWorker) runOnce(ctx context.Context) {
	at := w.now().UTC().Truncate(time.Second)
	for _, account := range w.accounts {
		if ctx.Err() != nil {
			return
		}
		snap, err := w.generator.Generate(ctx, account, at)
		if err != nil {
			slog.Error("SnapshotWorker: generation failed", "account", account, "error", err)
			continue
		}
		slog.Info("SnapshotWorker: generation completed",
			"account", account,
			"snapshot", snap.ID,
			"positions", snap.Summary.Positions,
			"prices_missing", snap.Summary.PricesMissing,
		)
		RunHooks(ctx, snap, w.hooks...)
	}
}

// Run starts the snapshot worker loop. It blocks until the context is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("SnapshotWorker: starting", "accounts", w.accounts, "interval", w.interval)

	// Generate immediately on startup
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("SnapshotWorker: shutting down")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}
