package corpus

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the SQLite-backed trial catalog.
type Config struct {
	Path         string        `json:"path"`
	MaxOpenConns int           `json:"max_open_conns"`
	MaxIdleConns int           `json:"max_idle_conns"`
	BusyTimeout  time.Duration `json:"-"`
}

// Merge overlays non-zero override fields on top of the receiver.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Path) != "" {
		result.Path = strings.TrimSpace(override.Path)
	}
	if override.MaxOpenConns > 0 {
		result.MaxOpenConns = override.MaxOpenConns
	}
	if override.MaxIdleConns > 0 {
		result.MaxIdleConns = override.MaxIdleConns
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	return result
}

// LoadConfig builds a Config from the environment with defaults applied.
func LoadConfig() Config {
	cfg := Config{Path: strings.TrimSpace(os.Getenv("TRIALSCOPE_CATALOG_PATH"))}
	if raw := os.Getenv("TRIALSCOPE_CATALOG_BUSY_TIMEOUT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			cfg.BusyTimeout = parsed
		} else if millis, err := strconv.Atoi(raw); err == nil {
			cfg.BusyTimeout = time.Duration(millis) * time.Millisecond
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Path) == "" {
		c.Path = "data/catalog.db"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
}
