package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/decision-letters/internal/llm"
	"github.com/jonathan/decision-letters/internal/types"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 3*time.Minute, cfg.LockTTL)
	assert.Equal(t, 5*time.Minute, cfg.InProgressTTL)
	assert.Equal(t, 5*time.Minute, cfg.FailedTTL)
	assert.Equal(t, time.Second, cfg.WaitInterval)
	assert.Equal(t, time.Hour, cfg.GenerationMemoTTL)
	assert.Equal(t, 0.3, cfg.Temperature)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 80, cfg.BiasPassScore)
	assert.Equal(t, 3.5, cfg.PassingThreshold)
	assert.Empty(t, cfg.SigningSecret)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RECEIPT_SIGNING_SECRET", testSecret)
	t.Setenv("IDEMPOTENCY_FAILED_TTL", "30s")
	t.Setenv("BIAS_PASS_SCORE", "90")
	t.Setenv("BIAS_DEDUCTION_CRITICAL", "40")
	t.Setenv("GENERATION_BANNED_PHRASES", "rockstar,ninja")
	t.Setenv("LLM_MODEL_LITE", "gemini-test-lite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, testSecret, cfg.SigningSecret)
	assert.Equal(t, 30*time.Second, cfg.FailedTTL)
	assert.Equal(t, []string{"rockstar", "ninja"}, cfg.BannedPhrases)

	policy := cfg.BiasPolicy()
	assert.Equal(t, 90, policy.PassScore)
	assert.Equal(t, 40, policy.Deductions[types.SeverityCritical])
	assert.Equal(t, 15, policy.Deductions[types.SeverityHigh])

	assert.Equal(t, "gemini-test-lite", cfg.LLMConfig().GetModel(llm.TierLite))
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("IDEMPOTENCY_TTL", "forever")

	cfg, err := Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		t.Helper()
		cfg, err := Load()
		require.NoError(t, err)
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.SigningSecret = "short" }, wantErr: "RECEIPT_SIGNING_SECRET"},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: "PORT"},
		{name: "zero failed ttl", mutate: func(c *Config) { c.FailedTTL = 0 }, wantErr: "IDEMPOTENCY_FAILED_TTL"},
		{name: "wait longer than lock", mutate: func(c *Config) { c.WaitInterval = 5 * time.Minute }, wantErr: "IDEMPOTENCY_WAIT_INTERVAL"},
		{name: "temperature above ceiling", mutate: func(c *Config) { c.Temperature = 0.9 }, wantErr: "GENERATION_TEMPERATURE"},
		{name: "tokens above ceiling", mutate: func(c *Config) { c.MaxTokens = 5000 }, wantErr: "GENERATION_MAX_TOKENS"},
		{name: "timeout above ceiling", mutate: func(c *Config) { c.GenerationTimeout = 2 * time.Minute }, wantErr: "GENERATION_TIMEOUT"},
		{name: "lock shorter than provider chain", mutate: func(c *Config) { c.LockTTL = 50 * time.Second }, wantErr: "IDEMPOTENCY_LOCK_TTL"},
		{name: "lock covers single route", mutate: func(c *Config) { c.LockTTL, c.LiteModel = 50*time.Second, "" }},
		{name: "no models", mutate: func(c *Config) { c.AdvancedModel, c.LiteModel = "", "" }, wantErr: "LLM_MODEL"},
		{name: "negative deduction", mutate: func(c *Config) { c.LowDeduction = -1 }, wantErr: "BIAS_DEDUCTION_LOW"},
		{name: "pass score out of range", mutate: func(c *Config) { c.BiasPassScore = 101 }, wantErr: "BIAS_PASS_SCORE"},
		{name: "threshold out of range", mutate: func(c *Config) { c.PassingThreshold = 6 }, wantErr: "CARD_PASSING_THRESHOLD"},
		{name: "no batch workers", mutate: func(c *Config) { c.BatchConcurrency = 0 }, wantErr: "BATCH_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireSigning(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireSigning())

	cfg.SigningSecret = testSecret
	assert.NoError(t, cfg.RequireSigning())
}

func TestDerivedOptions(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.IdempotencyOptions()
	assert.Equal(t, cfg.IdempotencyTTL, opts.TTL)
	assert.Equal(t, cfg.LockTTL, opts.LockTTL)
	assert.Equal(t, cfg.WaitInterval, opts.WaitInterval)

	gen := cfg.GenerationConfig()
	assert.Equal(t, cfg.Temperature, gen.Temperature)
	assert.Equal(t, cfg.GenerationTimeout, gen.Timeout)

	llmCfg := cfg.LLMConfig()
	assert.Equal(t, llm.ProviderGemini, llmCfg.Provider)
	assert.Equal(t, "gemini-2.5-pro", llmCfg.GetModel(llm.TierAdvanced))

	assert.Equal(t, "decisions:", cfg.RedisConfig().Prefix)
}
