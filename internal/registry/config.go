package registry

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the registry HTTP client.
type Config struct {
	BaseURL     string        `json:"base_url"`
	PageSize    int           `json:"page_size"`
	MaxStudies  int           `json:"max_studies"`
	RateLimit   float64       `json:"rate_limit"`
	HTTPTimeout time.Duration `json:"-"`
}

// Merge overlays non-zero override fields on top of the receiver.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.BaseURL) != "" {
		result.BaseURL = strings.TrimSpace(override.BaseURL)
	}
	if override.PageSize > 0 {
		result.PageSize = override.PageSize
	}
	if override.MaxStudies > 0 {
		result.MaxStudies = override.MaxStudies
	}
	if override.RateLimit > 0 {
		result.RateLimit = override.RateLimit
	}
	if override.HTTPTimeout > 0 {
		result.HTTPTimeout = override.HTTPTimeout
	}
	return result
}

// LoadConfig builds a Config from the environment with defaults applied.
func LoadConfig() Config {
	cfg := Config{BaseURL: strings.TrimSpace(os.Getenv("TRIALSCOPE_REGISTRY_URL"))}
	if raw := os.Getenv("TRIALSCOPE_REGISTRY_PAGE_SIZE"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.PageSize = parsed
		}
	}
	if raw := os.Getenv("TRIALSCOPE_REGISTRY_MAX_STUDIES"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			cfg.MaxStudies = parsed
		}
	}
	if raw := os.Getenv("TRIALSCOPE_REGISTRY_RATE"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.RateLimit = parsed
		}
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://clinicaltrials.gov/api/v2"
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxStudies <= 0 {
		c.MaxStudies = 500
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 2
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
}
