package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/river-data-aggregation/internal/httpcache"
	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

var validate = validator.New()

type AppConfig struct {
	// Request pacing and retry policy shared by every source.
	RateLimit float64       `validate:"gte=0"`
	Retries   int           `validate:"gte=1"`
	Backoff   time.Duration `validate:"gte=0"`

	HTTPTimeout time.Duration `validate:"gt=0"`
	UserAgent   string        `validate:"required"`

	// On-disk response cache.
	CacheDir string
	CacheTTL time.Duration
	NoCache  bool

	// DatabaseURL selects the Postgres store; empty keeps data in memory.
	DatabaseURL string

	LogLevel  string `validate:"oneof=debug info warn warning error"`
	LogFormat string `validate:"oneof=text json"`

	// FetchInterval controls how often the watch jobs run.
	FetchInterval time.Duration `validate:"gte=1m"`
	WatchFile     string
	Jobs          []hydro.WatchJob `validate:"dive"`

	// In-memory store retention.
	StoreMaxHistory int           `validate:"gte=0"` // max records per site (0 = unlimited)
	StoreMaxAge     time.Duration `validate:"gte=0"` // max age of a record (0 = unlimited)

	Port string `validate:"required,numeric"`
}

// Settings returns the hydro request settings carried by the config.
func (c *AppConfig) Settings() hydro.Settings {
	return hydro.Settings{RateLimit: c.RateLimit, Retries: c.Retries, Backoff: c.Backoff}
}

// Load reads configuration from the environment (and a .env file when
// present) with sensible defaults, then loads the watch file if set.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	defaults := hydro.DefaultSettings()
	cfg := &AppConfig{}
	var err error

	if cfg.RateLimit, err = getenvFloat("RATE_LIMIT", defaults.RateLimit); err != nil {
		return nil, err
	}
	cfg.Retries = getenvInt("RETRIES", defaults.Retries)
	if cfg.Backoff, err = getenvDuration("BACKOFF", defaults.Backoff); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.UserAgent = getenvDefault("USER_AGENT", "river-data-aggregation/1.0")

	cfg.CacheDir = getenvDefault("CACHE_DIR", httpcache.DefaultDir())
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", httpcache.DefaultTTL); err != nil {
		return nil, err
	}
	cfg.NoCache = getenvBool("NO_CACHE", false)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "text")

	// Scheduler interval: default 1 hour.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", time.Hour); err != nil {
		return nil, err
	}

	// Store retention: roughly a year of daily values.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 366)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 0); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "8080")

	cfg.WatchFile = os.Getenv("WATCH_FILE")
	if cfg.WatchFile != "" {
		jobs, err := LoadWatchFile(cfg.WatchFile)
		if err != nil {
			return nil, err
		}
		cfg.Jobs = jobs
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type watchFile struct {
	Jobs []hydro.WatchJob `yaml:"jobs"`
}

// ParseWatchJobs decodes a yaml document with a top-level jobs list.
func ParseWatchJobs(data []byte) ([]hydro.WatchJob, error) {
	var wf watchFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("watch file: %w", err)
	}
	for i := range wf.Jobs {
		if err := validate.Struct(wf.Jobs[i]); err != nil {
			return nil, fmt.Errorf("watch file: job %d: %w", i, err)
		}
		if wf.Jobs[i].Lookback <= 0 {
			wf.Jobs[i].Lookback = hydro.DefaultLookback
		}
	}
	return wf.Jobs, nil
}

func LoadWatchFile(path string) ([]hydro.WatchJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watch file: %w", err)
	}
	return ParseWatchJobs(data)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// getenvDuration accepts Go durations ("500ms") or plain seconds ("0.5").
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
