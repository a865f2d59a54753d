// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ops.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Service defaults
// --------------------------------------------------------------------------

const (
	// DefaultGraceMinutes is the window between a ping's scheduled time and
	// its deadline when a connection does not set its own grace period.
	DefaultGraceMinutes = 90

	// DefaultScheduledTime is the check-in time of day for connections
	// created without an explicit one.
	DefaultScheduledTime = "09:00"

	// MaxLocationAccuracyMeters bounds the GPS accuracy accepted for
	// in-person completions.
	MaxLocationAccuracyMeters = 100.0
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Background workers
	GenerateInterval time.Duration // daily ping generation pass
	MissedSweepEvery time.Duration // expired pending → missed
	BreakSweepEvery  time.Duration // break status transitions
	DispatchInterval time.Duration // notification outbox dispatch
	CleanupInterval  time.Duration // delivered outbox purge
	OutboxRetention  time.Duration

	// Check-in behavior
	DefaultGraceMins int

	// Push delivery
	PushCredentialsFile string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("PRUUF_DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PRUUF_DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		GenerateInterval: time.Duration(envInt("GENERATE_INTERVAL_MINUTES", 15)) * time.Minute,
		MissedSweepEvery: time.Duration(envInt("MISSED_SWEEP_MINUTES", 5)) * time.Minute,
		BreakSweepEvery:  time.Duration(envInt("BREAK_SWEEP_MINUTES", 30)) * time.Minute,
		DispatchInterval: time.Duration(envInt("DISPATCH_INTERVAL_SECONDS", 30)) * time.Second,
		CleanupInterval:  time.Duration(envInt("CLEANUP_INTERVAL_MINUTES", 60)) * time.Minute,
		OutboxRetention:  time.Duration(envInt("OUTBOX_RETENTION_DAYS", 30)) * 24 * time.Hour,

		DefaultGraceMins: envInt("DEFAULT_GRACE_MINUTES", DefaultGraceMinutes),

		PushCredentialsFile: envOr("PUSH_CREDENTIALS_FILE", ""),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
