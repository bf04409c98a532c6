// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentdesk/actiongate/internal/risk"
)

// Config holds all application configuration.
type Config struct {
	Port     string
	LogLevel string

	// ApprovalTimeout bounds how long a gated action waits for a
	// decision before it is force-rejected.
	ApprovalTimeout time.Duration
	// KeepAliveInterval is the idle ping period on event streams.
	KeepAliveInterval time.Duration
	// ResolvedRetention is how long resolved approval records are kept
	// before the reaper deletes them.
	ResolvedRetention time.Duration

	Risk risk.Config

	// PostgresDSN enables the durable pending store and API-key auth.
	PostgresDSN string
	// SQLitePath is the fallback pending store when Postgres is absent.
	SQLitePath string
	// ClickHouseDSN enables the decision audit writer.
	ClickHouseDSN string

	AuthCacheTTL time.Duration
	AuthFailOpen bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ApprovalTimeout:   getEnvDuration("APPROVAL_TIMEOUT", 300*time.Second),
		KeepAliveInterval: getEnvDuration("STREAM_KEEPALIVE_INTERVAL", 30*time.Second),
		ResolvedRetention: getEnvDuration("RESOLVED_RETENTION", 24*time.Hour),
		Risk: risk.Config{
			LowThreshold:         getEnvFloat("RISK_LOW_THRESHOLD", risk.DefaultLowThreshold),
			HighThreshold:        getEnvFloat("RISK_HIGH_THRESHOLD", risk.DefaultHighThreshold),
			BulkThreshold:        getEnvInt("RISK_BULK_THRESHOLD", risk.DefaultBulkThreshold),
			SensitivityOverrides: parseSensitivityOverrides(getEnv("RISK_SENSITIVITY_OVERRIDES", "")),
		},
		PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "./data/actiongate.db"),
		ClickHouseDSN: getEnv("CLICKHOUSE_DSN", ""),
		AuthCacheTTL:  getEnvDuration("AUTH_CACHE_TTL", 30*time.Second),
		AuthFailOpen:  getEnvBool("AUTH_FAIL_OPEN", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.ApprovalTimeout <= 0 {
		return fmt.Errorf("APPROVAL_TIMEOUT must be > 0")
	}
	if c.KeepAliveInterval <= 0 {
		return fmt.Errorf("STREAM_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.ResolvedRetention <= 0 {
		return fmt.Errorf("RESOLVED_RETENTION must be > 0")
	}
	if c.PostgresDSN == "" && c.SQLitePath == "" {
		return fmt.Errorf("either POSTGRES_DSN or SQLITE_PATH must be set")
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("risk configuration: %w", err)
	}
	return nil
}

// parseSensitivityOverrides parses "field:level,field:level" pairs.
// Malformed pairs and unknown levels are skipped.
func parseSensitivityOverrides(raw string) map[string]risk.Sensitivity {
	if raw == "" {
		return nil
	}
	overrides := make(map[string]risk.Sensitivity)
	for pair := range strings.SplitSeq(raw, ",") {
		field, level, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		switch s := risk.Sensitivity(strings.ToLower(strings.TrimSpace(level))); s {
		case risk.SensitivityLow, risk.SensitivityMedium, risk.SensitivityHigh:
			overrides[strings.TrimSpace(field)] = s
		}
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		// Bare integers are treated as seconds.
		if n, ierr := strconv.Atoi(strings.TrimSpace(value)); ierr == nil {
			return time.Duration(n) * time.Second
		}
		return fallback
	}
	return d
}
