package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Source names as they appear in DISABLED_SOURCES and the run summary.
const (
	SourceBinance   = "binance"
	SourceIOL       = "iol"
	SourceSantander = "santander"
	SourceEtherscan = "etherscan"
	SourceManual    = "manual"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL      string
	HTTPPort         string
	AdminAPIKey      string
	Accounts         []string
	SnapshotInterval time.Duration
	StaleThreshold   time.Duration
	BaseCurrency     string
	FXRates          string
	FetchConcurrency int
	SourceTimeout    time.Duration
	DisabledSources  []string

	Binance   BinanceConfig
	IOL       IOLConfig
	Santander SantanderConfig
	Etherscan EtherscanConfig
	Manual    ManualConfig
	CoinGecko CoinGeckoConfig
	FX        FXConfig
	Archive   ArchiveConfig
	Export    ExportConfig
}

type BinanceConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

type IOLConfig struct {
	URL      string
	Username string
	Password string
}

type SantanderConfig struct {
	URL          string
	HoldingsFile string
}

type EtherscanConfig struct {
	URL       string
	APIKey    string
	Addresses []string
}

type ManualConfig struct {
	HoldingsFile string
}

type CoinGeckoConfig struct {
	URL       string
	APIKey    string
	Symbols   []string
	RateLimit int
}

// FXConfig configures the live exchange rate feed layered over FX_RATES.
type FXConfig struct {
	LiveEnabled bool
	URL         string
	Casa        string
	MaxAge      time.Duration
}

// ArchiveConfig configures the parquet archive. S3 upload is enabled by S3Bucket.
type ArchiveConfig struct {
	LocalDir          string
	Compression       string
	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PathStyle       bool
}

// ExportConfig configures the workbook and Google Sheets exports. Each is
// enabled by its own setting.
type ExportConfig struct {
	XLSXDir         string
	SheetsID        string
	CredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:      envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:         envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:      envOrDefault("ADMIN_API_KEY", ""),
		Accounts:         envList("ACCOUNT_ID", []string{envOrDefault("IOL_ACCOUNT_ID", "unknown")}),
		SnapshotInterval: envOrDefaultDuration("SNAPSHOT_INTERVAL", 24*time.Hour),
		StaleThreshold:   envOrDefaultDuration("STALE_PRICE_THRESHOLD", 72*time.Hour),
		BaseCurrency:     strings.ToUpper(envOrDefault("VALUATIONS_BASE_CURRENCY", "USD")),
		FXRates:          envOrDefault("FX_RATES", "USDT:USD=1"),
		FetchConcurrency: envOrDefaultInt("FETCH_CONCURRENCY", 4),
		SourceTimeout:    envOrDefaultDuration("SOURCE_TIMEOUT", 60*time.Second),
		DisabledSources:  lo.Map(envList("DISABLED_SOURCES", nil), func(s string, _ int) string { return strings.ToLower(s) }),

		Binance: BinanceConfig{
			URL:       envOrDefault("BINANCE_BASE_URL", ""),
			APIKey:    envOrDefault("BINANCE_API_KEY", ""),
			APISecret: envOrDefault("BINANCE_API_SECRET", ""),
		},
		IOL: IOLConfig{
			URL:      envOrDefault("IOL_URL", "https://api.invertironline.com"),
			Username: envOrDefault("IOL_USERNAME", ""),
			Password: envOrDefault("IOL_PASSWORD", ""),
		},
		Santander: SantanderConfig{
			URL:          envOrDefault("SANTANDER_URL", "https://www.santander.com.ar"),
			HoldingsFile: envOrDefault("SANTANDER_HOLDINGS_FILE", ""),
		},
		Etherscan: EtherscanConfig{
			URL:       envOrDefault("ETHERSCAN_URL", "https://api.etherscan.io/v2/api"),
			APIKey:    envOrDefault("ETHERSCAN_API_KEY", ""),
			Addresses: envList("ETH_ADDRESSES", nil),
		},
		Manual: ManualConfig{
			HoldingsFile: envOrDefault("CRYPTO_HOLDINGS_FILE", ""),
		},
		CoinGecko: CoinGeckoConfig{
			URL:       envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
			APIKey:    envOrDefault("COINGECKO_API_KEY", ""),
			Symbols:   lo.Map(envList("FALLBACK_SYMBOLS", []string{"BTC", "ETH"}), func(s string, _ int) string { return strings.ToUpper(s) }),
			RateLimit: envOrDefaultInt("COINGECKO_RATE_LIMIT", 1),
		},
		FX: FXConfig{
			LiveEnabled: envOrDefaultBool("FX_LIVE_ENABLED", true),
			URL:         envOrDefault("DOLARAPI_URL", "https://dolarapi.com"),
			Casa:        strings.ToLower(envOrDefault("DOLARAPI_CASA", "blue")),
			MaxAge:      envOrDefaultDuration("FX_MAX_AGE", 72*time.Hour),
		},
		Archive: ArchiveConfig{
			LocalDir:          envOrDefault("SNAPSHOTS_LOCAL_DIR", "data/positions"),
			Compression:       envOrDefault("SNAPSHOTS_COMPRESSION", "snappy"),
			S3Bucket:          envOrDefault("SNAPSHOTS_S3_BUCKET", ""),
			S3Prefix:          envOrDefault("SNAPSHOTS_S3_PREFIX", "positions/"),
			S3Region:          envOrDefault("SNAPSHOTS_S3_REGION", envOrDefault("AWS_REGION", "us-east-1")),
			S3Endpoint:        envOrDefault("SNAPSHOTS_S3_ENDPOINT", ""),
			S3AccessKeyID:     envOrDefault("SNAPSHOTS_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: envOrDefault("SNAPSHOTS_S3_SECRET_ACCESS_KEY", ""),
			S3PathStyle:       envOrDefaultBool("SNAPSHOTS_S3_PATH_STYLE", false),
		},
		Export: ExportConfig{
			XLSXDir:         envOrDefault("EXPORT_XLSX_DIR", ""),
			SheetsID:        envOrDefault("GOOGLE_SHEETS_ID", ""),
			CredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		},
	}
}

// DisabledReason returns why the named source must not run, or "" when it is
// enabled and has what it needs.
func (c Config) DisabledReason(name string) string {
	if lo.Contains(c.DisabledSources, name) {
		return "disabled by DISABLED_SOURCES"
	}

	switch name {
	case SourceBinance:
		if c.Binance.APIKey == "" || c.Binance.APISecret == "" {
			return "BINANCE_API_KEY and BINANCE_API_SECRET not set"
		}
	case SourceIOL:
		if c.IOL.Username == "" || c.IOL.Password == "" {
			return "IOL_USERNAME and IOL_PASSWORD not set"
		}
	case SourceSantander:
		if c.Santander.HoldingsFile == "" {
			return "SANTANDER_HOLDINGS_FILE not set"
		}
	case SourceEtherscan:
		if c.Etherscan.APIKey == "" {
			return "ETHERSCAN_API_KEY not set"
		}
		if len(c.Etherscan.Addresses) == 0 {
			return "ETH_ADDRESSES not set"
		}
	case SourceManual:
		if c.Manual.HoldingsFile == "" {
			return "CRYPTO_HOLDINGS_FILE not set"
		}
	}
	return ""
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c Config) SheetsEnabled() bool {
	return c.Export.SheetsID != "" && c.Export.CredentialsJSON != ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping blanks and duplicates.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	items := lo.Uniq(lo.Compact(lo.Map(strings.Split(v, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	if len(items) == 0 {
		return defaultVal
	}
	return items
}
