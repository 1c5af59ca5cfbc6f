// Package llm provides generative provider configuration and adapters.
// Letters are drafted on the advanced tier and retried on the lite tier.
package llm

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is the cheap, fast model used as the fallback route
	TierLite ModelTier = "lite"
	// TierStandard is the middle tier, used when a tier is not configured
	TierStandard ModelTier = "standard"
	// TierAdvanced is the primary letter-drafting model
	TierAdvanced ModelTier = "advanced"
)

// ProviderName identifies a provider implementation
type ProviderName string

// Provider names
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini ProviderName = "gemini"
)

// Config holds the model configuration for the application
type Config struct {
	Provider ProviderName
	Models   map[ModelTier]string
}

// DefaultConfig returns the default configuration (currently Gemini)
func DefaultConfig() *Config {
	return DefaultGeminiConfig()
}

// DefaultGeminiConfig returns the default Gemini configuration
func DefaultGeminiConfig() *Config {
	return &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		Models:   make(map[ModelTier]string, len(c.Models)+1),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}
