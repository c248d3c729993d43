package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultAPIURL = "http://localhost:8000"
	DefaultDBPath = "bloom.db"
	DefaultLogDir = "logs"
)

// Config holds application configuration
type Config struct {
	APIURL         string        `env:"BLOOM_API_URL"`
	DBPath         string        `env:"BLOOM_DB_PATH" envDefault:"bloom.db"`
	LogDir         string        `env:"BLOOM_LOG_DIR" envDefault:"logs"`
	ChunkSize      int           `env:"BLOOM_CHUNK_SIZE" envDefault:"4"`
	StreamInterval time.Duration `env:"BLOOM_STREAM_INTERVAL" envDefault:"15ms"`
	RequestTimeout time.Duration `env:"BLOOM_REQUEST_TIMEOUT" envDefault:"60s"`
	Module         string        `env:"BLOOM_MODULE"`     // Module code to scope chat and uploads to
	SessionID      string        `env:"BLOOM_SESSION_ID"` // Resume an existing session instead of creating one
	BusURL         string        `env:"BLOOM_BUS_URL"`    // ws:// endpoint of a remote message bus
	Debug          bool          `env:"BLOOM_DEBUG" envDefault:"false"`

	Telemetry       bool          `env:"BLOOM_TELEMETRY" envDefault:"true"` // Export traces and metrics to LogDir
	MetricsInterval time.Duration `env:"BLOOM_METRICS_INTERVAL" envDefault:"10s"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the client cannot run with.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.StreamInterval <= 0 {
		return fmt.Errorf("stream interval must be positive, got %s", c.StreamInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.Telemetry && c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics interval must be positive, got %s", c.MetricsInterval)
	}
	if c.APIURL != "" && !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("api url must be http or https: %q", c.APIURL)
	}
	return nil
}
