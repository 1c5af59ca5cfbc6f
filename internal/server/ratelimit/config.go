package ratelimit

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EndpointConfig limits one route. Paths ending in "/" match by prefix.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	Burst  int // defaults to Limit when 0
}

// Config holds rate limiting configuration
type Config struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	DefaultLimit    int           `env:"RATE_LIMIT_DEFAULT_LIMIT" envDefault:"600"`
	DefaultWindow   time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW" envDefault:"1m"`
	DecisionLimit   int           `env:"RATE_LIMIT_DECISIONS_PER_HOUR" envDefault:"120"`
	CleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
	IdleTTL         time.Duration `env:"RATE_LIMIT_IDLE_TTL" envDefault:"1h"`
	Allowlist       []string      `env:"RATE_LIMIT_ALLOWLIST" envSeparator:","`
	Denylist        []string      `env:"RATE_LIMIT_DENYLIST" envSeparator:","`
	Endpoints       []EndpointConfig
}

// LoadConfig parses rate limiting configuration from the environment
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse rate limit env: %w", err)
	}
	cfg.Allowlist = trimList(cfg.Allowlist)
	cfg.Denylist = trimList(cfg.Denylist)
	cfg.Endpoints = DefaultEndpointConfigs(cfg.DecisionLimit)
	return &cfg, nil
}

// DefaultEndpointConfigs returns the per-route limits. Generation endpoints
// call the provider and get the strictest limits.
func DefaultEndpointConfigs(decisionsPerHour int) []EndpointConfig {
	if decisionsPerHour <= 0 {
		decisionsPerHour = 120
	}
	burst := max(decisionsPerHour/10, 1)
	return []EndpointConfig{
		{Path: "/v1/decisions", Method: "POST", Limit: decisionsPerHour, Window: time.Hour, Burst: burst},
		{Path: "/v1/decisions/batch", Method: "POST", Limit: max(decisionsPerHour/20, 1), Window: time.Hour, Burst: 1},
		{Path: "/v1/templates/lint", Method: "POST", Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/v1/bias/check", Method: "POST", Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/v1/receipts/verify", Method: "POST", Limit: 300, Window: time.Minute, Burst: 30},
	}
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
