package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/awmatheson/recoverable-cart-join/types"
)

// ComponentConfigs holds component instance configurations keyed by
// instance name (e.g., "order-feed-main").
type ComponentConfigs map[string]types.ComponentConfig

// Config represents the complete application configuration
type Config struct {
	Version    string           `json:"version"` // Semantic version of this config document
	Pipeline   PipelineConfig   `json:"pipeline"`
	NATS       NATSConfig       `json:"nats"`
	Metrics    MetricsConfig    `json:"metrics,omitempty"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
	Components ComponentConfigs `json:"components"`
}

// PipelineConfig defines pipeline identity and engine tuning
type PipelineConfig struct {
	Org         string `json:"org"`                   // Organization namespace used as NATS subject root
	ID          string `json:"id"`                    // Pipeline identifier (e.g., "cartjoin-main")
	Environment string `json:"environment,omitempty"` // "prod", "dev", "test"
	Shards      int    `json:"shards,omitempty"`      // Engine shard count (0 = default)
	QueueSize   int    `json:"queue_size,omitempty"`  // Per-shard queue depth (0 = default)
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URL           string        `json:"url,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Token         string        `json:"token,omitempty"`
	Credentials   string        `json:"credentials,omitempty"` // Path to a .creds file
	Name          string        `json:"name,omitempty"`        // Connection name
}

// MetricsConfig defines the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// LoggingConfig defines structured logging settings
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`  // "debug", "info", "warn", "error"
	Format string `json:"format,omitempty"` // "text" or "json"
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}

	return &clone
}

// Validate checks if the config is valid and normalizes the org field
func (c *Config) Validate() error {
	if c.Pipeline.Org == "" {
		return errors.New("pipeline.org is required")
	}

	c.Pipeline.Org = strings.ToLower(c.Pipeline.Org)
	if !isValidNATSSubjectPart(c.Pipeline.Org) {
		return fmt.Errorf(
			"pipeline.org '%s' is not valid for NATS subjects (must be alphanumeric with dots, dashes, underscores)",
			c.Pipeline.Org,
		)
	}

	if c.Pipeline.ID == "" {
		return errors.New("pipeline.id is required")
	}
	if c.Pipeline.Shards < 0 {
		return fmt.Errorf("pipeline.shards must be non-negative, got %d", c.Pipeline.Shards)
	}
	if c.Pipeline.QueueSize < 0 {
		return fmt.Errorf("pipeline.queue_size must be non-negative, got %d", c.Pipeline.QueueSize)
	}

	if c.Metrics.Enabled && c.Metrics.Port != 0 {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port %d outside valid range", c.Metrics.Port)
		}
	}

	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level %q invalid (debug, info, warn, error)", c.Logging.Level)
		}
	}

	for instanceName, config := range c.Components {
		if instanceName == "" {
			return errors.New("component instance name cannot be empty")
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("component %s: %w", instanceName, err)
		}
	}

	return nil
}

// EnabledComponents returns the enabled component configs keyed by
// instance name.
func (c *Config) EnabledComponents() ComponentConfigs {
	enabled := make(ComponentConfigs)
	for name, cfg := range c.Components {
		if cfg.Enabled {
			enabled[name] = cfg
		}
	}
	return enabled
}

// isValidNATSSubjectPart checks if a string is valid for use in NATS
// subjects: alphanumeric, dots, dashes, underscores.
func isValidNATSSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}
