package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/holdings/internal/api"
	"github.com/mtlprog/holdings/internal/config"
	"github.com/mtlprog/holdings/internal/database"
	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/snapshot"
	"github.com/mtlprog/holdings/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("error loading .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("holdings failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	accountFlag := &cli.StringSliceFlag{
		Name:    "account",
		Aliases: []string{"a"},
		Usage:   "account id (repeatable); defaults to ACCOUNT_ID",
	}

	return &cli.App{
		Name:  "holdings",
		Usage: "collect holdings from brokers, exchanges and wallets and value them",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the pipeline once per account, store the snapshot and run the hooks",
				Flags: []cli.Flag{
					accountFlag,
					&cli.BoolFlag{Name: "dry-run", Usage: "print the snapshot without storing it or running hooks"},
				},
				Action: runCommand,
			},
			{
				Name:   "serve",
				Usage:  "run the snapshot worker and the HTTP API",
				Action: serveCommand,
			},
			{
				Name:   "latest",
				Usage:  "print the latest stored snapshot as JSON",
				Flags:  []cli.Flag{accountFlag},
				Action: latestCommand,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations",
				Action: migrateCommand,
			},
			{
				Name:   "sources",
				Usage:  "list the configured sources and why any are disabled",
				Action: sourcesCommand,
			},
		},
	}
}

func accounts(c *cli.Context, cfg config.Config) []string {
	if list := c.StringSlice("account"); len(list) > 0 {
		return list
	}
	return cfg.Accounts
}

// openStore connects to the database, applies migrations and returns the snapshot repository.
func openStore(ctx context.Context, cfg config.Config) (*pgxpool.Pool, *snapshot.PgRepository, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	return pool, snapshot.NewPgRepository(pool), nil
}

func runCommand(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()

	pipe, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	at := time.Now().UTC().Truncate(time.Second)

	if c.Bool("dry-run") {
		for _, account := range accounts(c, cfg) {
			snap, err := pipe.Run(ctx, account, at)
			if err != nil {
				return fmt.Errorf("running pipeline for %s: %w", account, err)
			}
			if err := printJSON(c.App.Writer, snap); err != nil {
				return err
			}
		}
		return nil
	}

	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	hooks, err := buildHooks(ctx, cfg)
	if err != nil {
		return err
	}
	snapshots := snapshot.NewService(pipe, repo, snapshot.WithBaseCurrency(cfg.BaseCurrency))

	var failed []error
	for _, account := range accounts(c, cfg) {
		snap, err := snapshots.Generate(ctx, account, at)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", account, err))
			continue
		}
		worker.RunHooks(ctx, snap, hooks...)
		printSummary(c.App.Writer, snap)
	}
	return errors.Join(failed...)
}

func serveCommand(c *cli.Context) error {
	ctx := c.Context
	cfg := config.Load()

	pipe, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	pool, repo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	hooks, err := buildHooks(ctx, cfg)
	if err != nil {
		return err
	}
	snapshots := snapshot.NewService(pipe, repo, snapshot.WithBaseCurrency(cfg.BaseCurrency))

	snapshotWorker := worker.NewSnapshotWorker(snapshots, cfg.Accounts, cfg.SnapshotInterval, hooks...)
	go snapshotWorker.Run(ctx)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, generate endpoint is unprotected")
	}

	srv := api.NewServer(cfg.HTTPPort, snapshots, cfg.AdminAPIKey, hooks...)
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("HTTP server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func latestCommand(c *cli.Context) error {
	cfg := config.Load()
	pool, repo, err := openStore(c.Context, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	for _, account := range accounts(c, cfg) {
		snap, err := repo.Latest(c.Context, account)
		if err != nil {
			return fmt.Errorf("loading latest snapshot for %s: %w", account, err)
		}
		if snap == nil {
			slog.Warn("no snapshots stored", "account", account)
			continue
		}
		if err := printJSON(c.App.Writer, snap); err != nil {
			return err
		}
	}
	return nil
}

func migrateCommand(c *cli.Context) error {
	pool, _, err := openStore(c.Context, config.Load())
	if err != nil {
		return err
	}
	pool.Close()
	slog.Info("migrations up to date")
	return nil
}

func sourcesCommand(c *cli.Context) error {
	cfg := config.Load()
	for _, s := range buildSources(cfg, buildAdapters(cfg)) {
		status := "enabled"
		if !s.Enabled {
			status = "disabled: " + s.DisabledReason
		}
		if _, err := fmt.Fprintf(c.App.Writer, "%-10s %s\n", s.Name(), status); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, snap domain.Snapshot) {
	ok, skipped, failed := snap.Summary.SourceCounts()
	_, _ = fmt.Fprintf(w, "%s %s: %d positions, %d priced, %d missing; sources ok=%d skipped=%d failed=%d",
		snap.AccountID, snap.TakenAt.Format(time.RFC3339),
		snap.Summary.Positions, snap.Summary.PricesResolved, snap.Summary.PricesMissing,
		ok, skipped, failed,
	)
	if snap.Totals.BaseCurrency != "" {
		_, _ = fmt.Fprintf(w, "; total %s %s", domain.FormatAmount(snap.Totals.TotalBase, 2), snap.Totals.BaseCurrency)
	}
	_, _ = fmt.Fprintln(w)
}
