// Package config loads the decision pipeline settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/cache"
	"github.com/jonathan/decision-letters/internal/generation"
	"github.com/jonathan/decision-letters/internal/idempotency"
	"github.com/jonathan/decision-letters/internal/llm"
	"github.com/jonathan/decision-letters/internal/signing"
	"github.com/jonathan/decision-letters/internal/types"
)

// Config holds every tunable of the service. Unset variables take the defaults in the tags.
type Config struct {
	// Storage
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"decisions:"`

	// Server
	Port int `env:"PORT" envDefault:"8080"`

	// Signing
	SigningSecret string `env:"RECEIPT_SIGNING_SECRET"`

	// Idempotency
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	LockTTL        time.Duration `env:"IDEMPOTENCY_LOCK_TTL" envDefault:"3m"`
	InProgressTTL  time.Duration `env:"IDEMPOTENCY_IN_PROGRESS_TTL" envDefault:"5m"`
	FailedTTL      time.Duration `env:"IDEMPOTENCY_FAILED_TTL" envDefault:"5m"`
	WaitInterval   time.Duration `env:"IDEMPOTENCY_WAIT_INTERVAL" envDefault:"1s"`

	// Generation
	GeminiAPIKey      string        `env:"GEMINI_API_KEY"`
	AdvancedModel     string        `env:"LLM_MODEL_ADVANCED" envDefault:"gemini-2.5-pro"`
	StandardModel     string        `env:"LLM_MODEL_STANDARD" envDefault:"gemini-2.5-flash"`
	LiteModel         string        `env:"LLM_MODEL_LITE" envDefault:"gemini-2.5-flash-lite"`
	GenerationMemoTTL time.Duration `env:"GENERATION_MEMO_TTL" envDefault:"1h"`
	Temperature       float64       `env:"GENERATION_TEMPERATURE" envDefault:"0.3"`
	MaxTokens         int           `env:"GENERATION_MAX_TOKENS" envDefault:"1000"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT" envDefault:"30s"`
	BannedPhrases     []string      `env:"GENERATION_BANNED_PHRASES" envSeparator:","`

	// Bias policy
	CriticalDeduction int `env:"BIAS_DEDUCTION_CRITICAL" envDefault:"25"`
	HighDeduction     int `env:"BIAS_DEDUCTION_HIGH" envDefault:"15"`
	MediumDeduction   int `env:"BIAS_DEDUCTION_MEDIUM" envDefault:"5"`
	LowDeduction      int `env:"BIAS_DEDUCTION_LOW" envDefault:"2"`
	BiasPassScore     int `env:"BIAS_PASS_SCORE" envDefault:"80"`

	// Letters
	CompanyName      string  `env:"COMPANY_NAME" envDefault:"Our company"`
	TemplateVersion  string  `env:"TEMPLATE_VERSION" envDefault:"1.0"`
	PassingThreshold float64 `env:"CARD_PASSING_THRESHOLD" envDefault:"3.5"`
	BatchConcurrency int     `env:"BATCH_CONCURRENCY" envDefault:"4"`
}

// Load parses the environment into a Config and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Secrets are checked only when present; RequireSigning enforces them.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT must be between 1 and 65535")
	}
	if c.SigningSecret != "" && len(c.SigningSecret) < signing.MinSecretLength {
		return fmt.Errorf("config error: RECEIPT_SIGNING_SECRET must be at least %d bytes", signing.MinSecretLength)
	}

	durations := map[string]time.Duration{
		"IDEMPOTENCY_TTL":             c.IdempotencyTTL,
		"IDEMPOTENCY_LOCK_TTL":        c.LockTTL,
		"IDEMPOTENCY_IN_PROGRESS_TTL": c.InProgressTTL,
		"IDEMPOTENCY_FAILED_TTL":      c.FailedTTL,
		"IDEMPOTENCY_WAIT_INTERVAL":   c.WaitInterval,
		"GENERATION_MEMO_TTL":         c.GenerationMemoTTL,
		"GENERATION_TIMEOUT":          c.GenerationTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config error: %s must be positive", name)
		}
	}
	if c.WaitInterval >= c.LockTTL {
		return fmt.Errorf("config error: IDEMPOTENCY_WAIT_INTERVAL must be shorter than IDEMPOTENCY_LOCK_TTL")
	}

	if c.Temperature < 0 || c.Temperature > generation.MaxTemperature {
		return fmt.Errorf("config error: GENERATION_TEMPERATURE must be between 0 and %.1f", generation.MaxTemperature)
	}
	if c.MaxTokens <= 0 || c.MaxTokens > generation.MaxTokens {
		return fmt.Errorf("config error: GENERATION_MAX_TOKENS must be between 1 and %d", generation.MaxTokens)
	}
	if c.GenerationTimeout > generation.MaxTimeout {
		return fmt.Errorf("config error: GENERATION_TIMEOUT must not exceed %s", generation.MaxTimeout)
	}
	if c.AdvancedModel == "" && c.LiteModel == "" {
		return fmt.Errorf("config error: at least one of LLM_MODEL_ADVANCED and LLM_MODEL_LITE is required")
	}
	routes := 0
	for _, model := range []string{c.AdvancedModel, c.LiteModel} {
		if model != "" {
			routes++
		}
	}
	if c.LockTTL <= time.Duration(routes)*c.GenerationTimeout {
		return fmt.Errorf("config error: IDEMPOTENCY_LOCK_TTL must exceed GENERATION_TIMEOUT for each of the %d model routes", routes)
	}

	for name, v := range map[string]int{
		"BIAS_DEDUCTION_CRITICAL": c.CriticalDeduction,
		"BIAS_DEDUCTION_HIGH":     c.HighDeduction,
		"BIAS_DEDUCTION_MEDIUM":   c.MediumDeduction,
		"BIAS_DEDUCTION_LOW":      c.LowDeduction,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("config error: %s must be between 0 and 100", name)
		}
	}
	if c.BiasPassScore < 0 || c.BiasPassScore > 100 {
		return fmt.Errorf("config error: BIAS_PASS_SCORE must be between 0 and 100")
	}

	if c.PassingThreshold <= 0 || c.PassingThreshold > 5 {
		return fmt.Errorf("config error: CARD_PASSING_THRESHOLD must be in (0, 5]")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("config error: BATCH_CONCURRENCY must be positive")
	}
	return nil
}

// RequireSigning fails when no signing secret is configured
func (c *Config) RequireSigning() error {
	if c.SigningSecret == "" {
		return fmt.Errorf("config error: RECEIPT_SIGNING_SECRET is required")
	}
	return nil
}

// BiasPolicy returns the configured bias scoring policy
func (c *Config) BiasPolicy() bias.Policy {
	return bias.Policy{
		Deductions: map[types.Severity]int{
			types.SeverityCritical: c.CriticalDeduction,
			types.SeverityHigh:     c.HighDeduction,
			types.SeverityMedium:   c.MediumDeduction,
			types.SeverityLow:      c.LowDeduction,
		},
		PassScore: c.BiasPassScore,
	}
}

// LLMConfig returns the model tiers for the provider chain
func (c *Config) LLMConfig() *llm.Config {
	cfg := &llm.Config{Provider: llm.ProviderGemini, Models: map[llm.ModelTier]string{}}
	if c.AdvancedModel != "" {
		cfg.Models[llm.TierAdvanced] = c.AdvancedModel
	}
	if c.StandardModel != "" {
		cfg.Models[llm.TierStandard] = c.StandardModel
	}
	if c.LiteModel != "" {
		cfg.Models[llm.TierLite] = c.LiteModel
	}
	return cfg
}

// GenerationConfig returns the default per-request generation parameters
func (c *Config) GenerationConfig() generation.Config {
	return generation.Config{
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Timeout:     c.GenerationTimeout,
	}
}

// IdempotencyOptions returns the coordinator TTLs. Logger and Audit are left for the caller.
func (c *Config) IdempotencyOptions() idempotency.Options {
	return idempotency.Options{
		TTL:           c.IdempotencyTTL,
		LockTTL:       c.LockTTL,
		InProgressTTL: c.InProgressTTL,
		FailedTTL:     c.FailedTTL,
		WaitInterval:  c.WaitInterval,
	}
}

// RedisConfig returns the shared cache connection settings
func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   c.RedisPrefix,
	}
}
