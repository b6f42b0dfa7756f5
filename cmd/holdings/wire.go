package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mtlprog/holdings/internal/archive"
	"github.com/mtlprog/holdings/internal/config"
	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/export"
	"github.com/mtlprog/holdings/internal/normalize"
	"github.com/mtlprog/holdings/internal/pipeline"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/source"
	"github.com/mtlprog/holdings/internal/source/binance"
	"github.com/mtlprog/holdings/internal/source/coingecko"
	"github.com/mtlprog/holdings/internal/source/dolarapi"
	"github.com/mtlprog/holdings/internal/source/etherscan"
	"github.com/mtlprog/holdings/internal/source/iol"
	"github.com/mtlprog/holdings/internal/source/manual"
	"github.com/mtlprog/holdings/internal/source/santander"
	"github.com/mtlprog/holdings/internal/valuation"
	"github.com/mtlprog/holdings/internal/worker"
)

// Per-source request budgets, in requests per second.
const (
	iolRateLimit       = 5
	santanderRateLimit = 2
	etherscanRateLimit = 4
)

// adapters holds every collaborator built from the configuration. Price-only
// collaborators are always built since they need no credentials.
type adapters struct {
	binance   *binance.Client
	iol       *iol.Client
	santander *santander.Client
	etherscan *etherscan.Client
	manual    *manual.Source
	coingecko *coingecko.Client
}

func buildAdapters(cfg config.Config) adapters {
	var binanceOpts []binance.Option
	if cfg.Binance.URL != "" {
		binanceOpts = append(binanceOpts, binance.WithBaseURL(cfg.Binance.URL))
	}

	return adapters{
		binance:   binance.NewClient(cfg.Binance.APIKey, cfg.Binance.APISecret, binanceOpts...),
		iol:       iol.NewClient(cfg.IOL.URL, cfg.IOL.Username, cfg.IOL.Password, source.WithRateLimit(iolRateLimit)),
		santander: santander.NewClient(cfg.Santander.URL, cfg.Santander.HoldingsFile, source.WithRateLimit(santanderRateLimit)),
		etherscan: etherscan.NewClient(cfg.Etherscan.URL, cfg.Etherscan.APIKey, cfg.Etherscan.Addresses, source.WithRateLimit(etherscanRateLimit)),
		manual:    manual.NewSource(config.SourceManual, cfg.Manual.HoldingsFile),
		coingecko: coingecko.NewClient(cfg.CoinGecko.URL, cfg.CoinGecko.APIKey, source.WithRateLimit(cfg.CoinGecko.RateLimit)),
	}
}

// sourceRules maps each position source onto its normalization rules.
var sourceRules = map[string]normalize.Rules{
	config.SourceBinance: {
		Market:          config.SourceBinance,
		Source:          config.SourceBinance,
		InstrumentType:  domain.InstrumentCrypto,
		DefaultCurrency: domain.USD,
		StripPrefixes:   []string{"LD"},
	},
	config.SourceIOL: {
		Market:          config.SourceIOL,
		Source:          config.SourceIOL,
		InstrumentType:  domain.InstrumentEquity,
		DefaultCurrency: "ARS",
		StripSuffixes:   []string{".BA"},
	},
	config.SourceSantander: {
		Market:          config.SourceSantander,
		Source:          config.SourceSantander,
		InstrumentType:  domain.InstrumentFund,
		DefaultCurrency: "ARS",
	},
	config.SourceEtherscan: {
		Market:          "ethereum",
		Source:          config.SourceEtherscan,
		InstrumentType:  domain.InstrumentCrypto,
		DefaultCurrency: domain.USD,
	},
	config.SourceManual: {
		Market:          "crypto",
		Source:          config.SourceManual,
		InstrumentType:  domain.InstrumentCrypto,
		DefaultCurrency: domain.USD,
	},
}

// buildSources returns the explicit source list in a fixed order. A source
// without what it needs is listed as disabled with the reason.
func buildSources(cfg config.Config, a adapters) []pipeline.SourceSettings {
	entries := []struct {
		name    string
		adapter source.PositionSource
	}{
		{config.SourceBinance, a.binance},
		{config.SourceIOL, a.iol},
		{config.SourceSantander, a.santander},
		{config.SourceEtherscan, a.etherscan},
		{config.SourceManual, a.manual},
	}

	out := make([]pipeline.SourceSettings, 0, len(entries))
	for _, e := range entries {
		s := pipeline.SourceSettings{Rules: sourceRules[e.name]}
		if reason := cfg.DisabledReason(e.name); reason != "" {
			s.DisabledReason = reason
		} else {
			s.Adapter = e.adapter
			s.Enabled = true
		}
		out = append(out, s)
	}
	return out
}

// buildRouter routes each market to the collaborator that quotes it. IOL
// holdings carry their country as market. Wallet and manually held crypto
// falls through to Binance by instrument type.
func buildRouter(a adapters) *price.Router {
	r := price.NewRouter().
		Market(config.SourceBinance, a.binance).
		Market(config.SourceIOL, a.iol).
		Market(config.SourceSantander, a.santander).
		Instrument(domain.InstrumentCrypto, a.binance)
	for _, country := range iol.DefaultCountries {
		r.Market(country, a.iol)
	}
	return r
}

func buildPipeline(cfg config.Config) (*pipeline.Service, error) {
	a := buildAdapters(cfg)

	resolver := price.NewResolver(buildRouter(a), price.WithFallback(a.coingecko, cfg.CoinGecko.Symbols...))

	fx, err := valuation.ParseRates(cfg.FXRates)
	if err != nil {
		return nil, fmt.Errorf("parsing FX_RATES: %w", err)
	}
	engine := valuation.NewEngine(cfg.StaleThreshold, valuation.WithBaseCurrency(cfg.BaseCurrency, fx))

	sources := buildSources(cfg, a)
	for _, s := range sources {
		if !s.Enabled {
			slog.Info("source disabled", "source", s.Name(), "reason", s.DisabledReason)
		}
	}

	return pipeline.NewService(sources, resolver, engine, pipeline.Config{
		FetchConcurrency: cfg.FetchConcurrency,
		SourceTimeout:    cfg.SourceTimeout,
		FX:               buildRates(cfg, fx),
	}), nil
}

// buildRates layers the live dollar feed over the static FX_RATES table.
func buildRates(cfg config.Config, static valuation.StaticRates) *valuation.LiveRates {
	var fetchers []valuation.RateFetcher
	if cfg.FX.LiveEnabled {
		fetchers = append(fetchers, dolarapi.NewClient(cfg.FX.URL, cfg.FX.Casa,
			source.WithTimeout(cfg.SourceTimeout),
			source.WithRateLimit(1),
		))
	} else {
		slog.Info("live fx disabled, using static rates only")
	}
	return valuation.NewLiveRates(static, fetchers, valuation.WithRateMaxAge(cfg.FX.MaxAge))
}

// buildHooks assembles the after-snapshot hooks: the parquet archive always,
// the exports when configured.
func buildHooks(ctx context.Context, cfg config.Config) ([]worker.AfterSnapshotHook, error) {
	stores := []archive.Store{archive.NewLocalStore(cfg.Archive.LocalDir)}
	if cfg.Archive.S3Bucket != "" {
		s3Store, err := archive.NewS3Store(ctx, archive.S3Config{
			Bucket:          cfg.Archive.S3Bucket,
			Prefix:          cfg.Archive.S3Prefix,
			Region:          cfg.Archive.S3Region,
			Endpoint:        cfg.Archive.S3Endpoint,
			AccessKeyID:     cfg.Archive.S3AccessKeyID,
			SecretAccessKey: cfg.Archive.S3SecretAccessKey,
			PathStyle:       cfg.Archive.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 archive store: %w", err)
		}
		stores = append(stores, s3Store)
	}
	hooks := []worker.AfterSnapshotHook{archive.NewArchiver(cfg.Archive.Compression, stores...)}

	var writers []export.Writer
	if cfg.Export.XLSXDir != "" {
		writers = append(writers, export.NewWorkbookWriter(cfg.Export.XLSXDir))
	}
	if cfg.SheetsEnabled() {
		sheetsWriter, err := export.NewSheetsWriter(ctx, cfg.Export.SheetsID, cfg.Export.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("creating sheets writer: %w", err)
		}
		writers = append(writers, sheetsWriter)
	} else if cfg.Export.SheetsID != "" {
		slog.Warn("GOOGLE_SHEETS_ID set without GOOGLE_CREDENTIALS_JSON, sheets export disabled")
	}
	if len(writers) > 0 {
		exporter := export.NewService(writers...)
		slog.Info("export enabled", "writers", exporter.Writers())
		hooks = append(hooks, exporter)
	}

	return hooks, nil
}
