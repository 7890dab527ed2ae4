package vector

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config controls the index database connection.
type Config struct {
	Path         string        `json:"path"`
	BusyTimeout  time.Duration `json:"-"`
	MaxOpenConns int           `json:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns"`
}

// Merge overlays non-empty override values onto the base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Path) != "" {
		result.Path = strings.TrimSpace(override.Path)
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	return result
}

// LoadConfig reads index configuration from the environment.
func LoadConfig() Config {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("TRIALSCOPE_INDEX_PATH")); path != "" {
		cfg.Path = path
	}
	if timeout := strings.TrimSpace(os.Getenv("TRIALSCOPE_INDEX_BUSY_TIMEOUT")); timeout != "" {
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.BusyTimeout = parsed
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = filepath.Join("data", "index.db")
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
}
