// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes storage backends,
// Reddit/PullPush client settings, pool tuning (daily caps, cooldowns),
// crawl scheduling intervals, logging, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StorageBackend selects the relational engine behind the dedup store.
type StorageBackend string

const (
	// StorageSQLite stores entities in a local SQLite file (pure-Go driver).
	StorageSQLite StorageBackend = "sqlite"
	// StoragePostgres stores entities in PostgreSQL.
	StoragePostgres StorageBackend = "postgres"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string // PG_HOST
	Port     int    // PG_PORT
	Database string // PG_DATABASE
	User     string // PG_USER
	Password string // PG_PASSWORD
	MaxConns int    // PG_MAX_CONNECTIONS
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the crawler.
type Config struct {
	// Storage
	Storage    StorageBackend // STORAGE_BACKEND: sqlite|postgres
	SQLitePath string         // SQLITE_DB_PATH
	Postgres   PostgresConfig

	// Pools
	UseProxies        bool          // USE_PROXIES
	MaxDailyUsage     int           // MAX_DAILY_USAGE per credential per rolling day
	RateLimitCooldown time.Duration // RATE_LIMIT_COOLDOWN after a rate-limited failure
	UsageResetEvery   time.Duration // USAGE_RESET_INTERVAL for the background scan

	// Rotating client
	MaxRetries   int           // MAX_RETRIES (attempts = MaxRetries+1)
	RetryBackoff time.Duration // RETRY_BACKOFF linear base (attempt * backoff)

	// Outbound HTTP
	RequestTimeout  time.Duration // REQUEST_TIMEOUT for every API call
	RedditBaseURL   string        // REDDIT_BASE_URL public site and token origin
	PublicRPS       float64       // PUBLIC_RPS pacing for the tokenless .json endpoints
	PullPushBaseURL string        // PULLPUSH_BASE_URL
	PullPushRPS     float64       // PULLPUSH_RPS inter-request pacing

	// Crawling
	OutputDir      string        // OUTPUT_DIR for JSON backups
	TrackingDays   int           // TRACKING_DAYS for new tracking entries
	CrawlFrequency string        // CRAWL_FREQUENCY label stored on tracking rows
	CrawlInterval  time.Duration // CRAWL_INTERVAL between crawl cycles in serve mode
	TrackInterval  time.Duration // TRACK_INTERVAL between comment-tracking passes
	CleanInterval  time.Duration // CLEAN_INTERVAL between ledger cleanup passes
	Subreddits     []string      // SUBREDDITS crawled in serve mode (CSV)

	// Admin HTTP server
	Port           string        // PORT
	GinMode        string        // GIN_MODE: debug|release|test
	ReadTimeout    time.Duration // READ_TIMEOUT
	WriteTimeout   time.Duration // WRITE_TIMEOUT
	IdleTimeout    time.Duration // IDLE_TIMEOUT
	RateRPS        float64       // RATE_RPS admin API limiter tokens/second
	RateBurst      int           // RATE_BURST admin API limiter bucket size
	AllowedOrigins []string      // CORS_ALLOWED_ORIGINS (CSV)

	// Logging
	LogLevel  string // LOG_LEVEL: debug|info|warn|error|fatal|panic
	LogPretty bool   // LOG_PRETTY console output in dev

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment (a .env file is honored when
// present), applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		Storage:    StorageBackend(strings.ToLower(getenv("STORAGE_BACKEND", "sqlite"))),
		SQLitePath: getenv("SQLITE_DB_PATH", "data/reddit_miner.db"),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "localhost"),
			Port:     getint("PG_PORT", 5432),
			Database: getenv("PG_DATABASE", "reddit_data"),
			User:     getenv("PG_USER", "postgres"),
			Password: getenv("PG_PASSWORD", ""),
			MaxConns: getint("PG_MAX_CONNECTIONS", 20),
		},

		UseProxies:        getbool("USE_PROXIES", false),
		MaxDailyUsage:     getint("MAX_DAILY_USAGE", 800),
		RateLimitCooldown: getdur("RATE_LIMIT_COOLDOWN", 10*time.Minute),
		UsageResetEvery:   getdur("USAGE_RESET_INTERVAL", time.Hour),

		MaxRetries:   getint("MAX_RETRIES", 3),
		RetryBackoff: getdur("RETRY_BACKOFF", 2*time.Second),

		RequestTimeout:  getdur("REQUEST_TIMEOUT", 30*time.Second),
		RedditBaseURL:   getenv("REDDIT_BASE_URL", "https://www.reddit.com"),
		PublicRPS:       getfloat("PUBLIC_RPS", 1.0),
		PullPushBaseURL: getenv("PULLPUSH_BASE_URL", "https://api.pullpush.io"),
		PullPushRPS:     getfloat("PULLPUSH_RPS", 1.0),

		OutputDir:      getenv("OUTPUT_DIR", "data"),
		TrackingDays:   getint("TRACKING_DAYS", 3),
		CrawlFrequency: getenv("CRAWL_FREQUENCY", "30m"),
		CrawlInterval:  getdur("CRAWL_INTERVAL", 30*time.Minute),
		TrackInterval:  getdur("TRACK_INTERVAL", 5*time.Minute),
		CleanInterval:  getdur("CLEAN_INTERVAL", time.Hour),
		Subreddits:     splitCSV(getenv("SUBREDDITS", "")),

		Port:           getenv("PORT", "8080"),
		GinMode:        strings.ToLower(getenv("GIN_MODE", "release")),
		ReadTimeout:    getdur("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:    getdur("IDLE_TIMEOUT", 60*time.Second),
		RateRPS:        getfloat("RATE_RPS", 5.0),
		RateBurst:      getint("RATE_BURST", 10),
		AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "crawl-reddit"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.Storage {
	case StorageSQLite, StoragePostgres:
	default:
		return cfg, fmt.Errorf("STORAGE_BACKEND must be sqlite or postgres, got %q", cfg.Storage)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.Storage == StorageSQLite && strings.TrimSpace(cfg.SQLitePath) == "" {
		return cfg, errors.New("SQLITE_DB_PATH must not be empty")
	}
	if cfg.MaxDailyUsage < 1 {
		return cfg, errors.New("MAX_DAILY_USAGE must be >= 1")
	}
	if cfg.RateLimitCooldown <= 0 || cfg.UsageResetEvery <= 0 {
		return cfg, errors.New("cooldown and reset intervals must be positive durations")
	}
	if cfg.MaxRetries < 0 {
		return cfg, errors.New("MAX_RETRIES must be >= 0")
	}
	if cfg.RetryBackoff < 0 {
		return cfg, errors.New("RETRY_BACKOFF must be >= 0")
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, errors.New("REQUEST_TIMEOUT must be a positive duration")
	}
	if cfg.TrackingDays < 1 {
		return cfg, errors.New("TRACKING_DAYS must be >= 1")
	}
	if cfg.PullPushRPS <= 0 {
		return cfg, errors.New("PULLPUSH_RPS must be > 0")
	}
	if cfg.PublicRPS <= 0 {
		return cfg, errors.New("PUBLIC_RPS must be > 0")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string for the configured database.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.Database)
}

// ---- helpers (no external deps beyond godotenv) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
