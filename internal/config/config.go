// Package config provides configuration loading for counseld.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/counseld/internal/logging"
)

// Config is the full counseld configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  logging.Config `koanf:"logging"`
	Store    StoreConfig    `koanf:"store"`
	Taxonomy TaxonomyConfig `koanf:"taxonomy"`
	Alerts   AlertsConfig   `koanf:"alerts"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// RateLimit is per-client requests per second on the intake
	// endpoint; RateBurst is the bucket size. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// StoreConfig selects and configures the conversation store backend.
type StoreConfig struct {
	Backend string `koanf:"backend"` // "memory" or "sqlite"
	Path    string `koanf:"path"`    // sqlite database file
}

// TaxonomyConfig points at the crisis keyword taxonomy file.
type TaxonomyConfig struct {
	Path  string `koanf:"path"`  // empty means built-in defaults
	Watch bool   `koanf:"watch"` // hot-reload on file change
}

// AlertsConfig controls escalation alert publishing.
type AlertsConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8484
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimit) + 1
	}

	// Each logging field defaults independently. Redaction in particular
	// must default on even when level and format are customized.
	defaults := logging.NewDefaultConfig()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Format
	}
	if cfg.Logging.Fields == nil {
		cfg.Logging.Fields = defaults.Fields
	}
	if !cfg.Logging.Redaction.Enabled && len(cfg.Logging.Redaction.Fields) == 0 {
		cfg.Logging.Redaction = defaults.Redaction
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = "counseld.db"
	}

	if cfg.Alerts.Enabled && cfg.Alerts.NATSURL == "" {
		cfg.Alerts.NATSURL = "nats://localhost:4222"
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("rate burst must be >= 1 when rate limiting is enabled")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("store backend must be 'memory' or 'sqlite', got %q", c.Store.Backend)
	}

	if c.Taxonomy.Watch && c.Taxonomy.Path == "" {
		return fmt.Errorf("taxonomy watch requires a taxonomy path")
	}

	if c.Alerts.Enabled && c.Alerts.NATSURL == "" {
		return fmt.Errorf("alerts nats_url is required when alerts are enabled")
	}

	return nil
}
