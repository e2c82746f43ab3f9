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

type Config struct {
	Port        string
	DatabaseURL string

	PlaidClientID   string
	PlaidSecret     string
	PlaidEnv        string
	PlaidWebhookURL string

	JWTSecret      string
	AllowedOrigins []string
	Demo           bool
	LogLevel       string
	LogPretty      bool

	SyncWorkers     int
	SyncRetryDelay  time.Duration
	IDMaxAttempts   int
	CategoryMapPath string
	JobWorkers      int
	JobBuffer       int
}

// Load reads the environment, loading .env first if present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		Port:        e.str("PORT", "8080"),
		DatabaseURL: e.str("DATABASE_URL", ""),

		PlaidClientID:   e.str("PLAID_CLIENT_ID", ""),
		PlaidSecret:     e.str("PLAID_SECRET", ""),
		PlaidEnv:        e.str("PLAID_ENV", "sandbox"),
		PlaidWebhookURL: e.str("PLAID_WEBHOOK_URL", ""),

		JWTSecret:      e.str("JWT_SECRET", ""),
		AllowedOrigins: e.list("ALLOWED_ORIGINS", []string{"https://budgeeapp.com", "https://www.budgeeapp.com"}),
		Demo:           e.bool("DEMO", false),
		LogLevel:       e.str("LOG_LEVEL", "info"),
		LogPretty:      e.bool("LOG_PRETTY", false),

		SyncWorkers:     e.int("SYNC_WORKERS", 4),
		SyncRetryDelay:  e.duration("SYNC_RETRY_DELAY", 2*time.Second),
		IDMaxAttempts:   e.int("ID_MAX_ATTEMPTS", 5),
		CategoryMapPath: e.str("CATEGORY_MAP_PATH", ""),
		JobWorkers:      e.int("JOB_WORKERS", 4),
		JobBuffer:       e.int("JOB_BUFFER", 100),
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}

	if cfg.DatabaseURL == "" && !cfg.Demo {
		return Config{}, errors.New("DATABASE_URL is required outside demo mode")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if cfg.PlaidEnv != "sandbox" && cfg.PlaidEnv != "production" {
		return Config{}, fmt.Errorf("PLAID_ENV must be sandbox or production, got %q", cfg.PlaidEnv)
	}
	if cfg.SyncWorkers < 1 || cfg.JobWorkers < 1 || cfg.IDMaxAttempts < 1 {
		return Config{}, errors.New("SYNC_WORKERS, JOB_WORKERS and ID_MAX_ATTEMPTS must be positive")
	}
	return cfg, nil
}

// PlaidEnabled reports whether Plaid credentials are configured.
func (c Config) PlaidEnabled() bool {
	return c.PlaidClientID != "" && c.PlaidSecret != ""
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, fallback string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return fallback
}

func (e *env) int(key string, fallback int) int {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (e *env) bool(key string, fallback bool) bool {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func (e *env) list(key string, fallback []string) []string {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
