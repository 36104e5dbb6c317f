package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the bterminal server.
type Config struct {
	Port   int
	APIKey string

	// Shell started for every new session
	Shell string

	// Local data directory for the SQLite audit journal
	DataDir string
	// Audit database: empty = SQLite in DataDir, postgres:// = PostgreSQL, "off" disables
	AuditDBURL string

	// Lifecycle event sinks (optional)
	NATSURL      string
	NATSSubject  string
	RedisURL     string
	RedisChannel string

	// Separate listen address for /metrics; empty serves it on Port
	MetricsAddr string

	// Parent watchdog poll interval; zero disables it
	WatchdogInterval time.Duration

	// Per-session buffers
	FanoutCapacity int
	HistoryBytes   int
}

// AuditEnabled reports whether an audit journal should be opened.
func (c *Config) AuditEnabled() bool {
	return !strings.EqualFold(c.AuditDBURL, "off")
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:   3000,
		APIKey: os.Getenv("BTERMINAL_API_KEY"),
		Shell:  envOrDefault("BTERMINAL_SHELL", "/bin/bash"),

		DataDir:    envOrDefault("BTERMINAL_DATA_DIR", "./data"),
		AuditDBURL: os.Getenv("BTERMINAL_AUDIT_DB_URL"),

		NATSURL:      os.Getenv("BTERMINAL_NATS_URL"),
		NATSSubject:  envOrDefault("BTERMINAL_NATS_SUBJECT", "bterminal.sessions"),
		RedisURL:     os.Getenv("BTERMINAL_REDIS_URL"),
		RedisChannel: envOrDefault("BTERMINAL_REDIS_CHANNEL", "bterminal:sessions"),

		MetricsAddr: os.Getenv("BTERMINAL_METRICS_ADDR"),

		WatchdogInterval: time.Duration(envOrDefaultInt("BTERMINAL_WATCHDOG_INTERVAL_SEC", 2)) * time.Second,

		FanoutCapacity: envOrDefaultInt("BTERMINAL_FANOUT_CAPACITY", 100),
		HistoryBytes:   envOrDefaultInt("BTERMINAL_HISTORY_BYTES", 100_000),
	}

	if portStr := os.Getenv("BTERMINAL_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid BTERMINAL_PORT %q: %w", portStr, err)
		}
		if port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid BTERMINAL_PORT %d: out of range", port)
		}
		cfg.Port = port
	}

	if cfg.WatchdogInterval < 0 {
		cfg.WatchdogInterval = 0
	}
	if cfg.FanoutCapacity <= 0 {
		return nil, fmt.Errorf("invalid BTERMINAL_FANOUT_CAPACITY %d: must be positive", cfg.FanoutCapacity)
	}
	if cfg.HistoryBytes <= 0 {
		return nil, fmt.Errorf("invalid BTERMINAL_HISTORY_BYTES %d: must be positive", cfg.HistoryBytes)
	}

	return cfg, nil
}

// ListenAddr returns the main HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
