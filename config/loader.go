package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "CARTJOIN"

// Default returns a configuration with sensible development defaults.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Pipeline: PipelineConfig{
			Org:         "cartjoin",
			ID:          "cartjoin-local",
			Environment: "dev",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Name:          "cartjoin",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Components: ComponentConfigs{},
	}
}

// Load reads a JSON config file, applies environment overrides, and
// validates the result. An empty path returns the defaults (with
// overrides applied).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides layers CARTJOIN_* environment variables over the
// loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv(EnvPrefix + "_NATS_TOKEN"); v != "" {
		cfg.NATS.Token = v
	}
	if v := os.Getenv(EnvPrefix + "_NATS_CREDENTIALS"); v != "" {
		cfg.NATS.Credentials = v
	}
	if v := os.Getenv(EnvPrefix + "_PIPELINE_ID"); v != "" {
		cfg.Pipeline.ID = v
	}
	if v := os.Getenv(EnvPrefix + "_PIPELINE_ORG"); v != "" {
		cfg.Pipeline.Org = v
	}
	if v := os.Getenv(EnvPrefix + "_ENVIRONMENT"); v != "" {
		cfg.Pipeline.Environment = v
	}
	if v := os.Getenv(EnvPrefix + "_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Shards = n
		}
	}
	if v := os.Getenv(EnvPrefix + "_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvPrefix + "_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = n
		}
	}
}
