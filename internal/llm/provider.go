package llm

import (
	"context"
	"errors"
	"time"
)

// Role tags a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged chat message
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Usage reports token consumption
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider response
type Completion struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

// Provider is an abstraction over generative text providers
type Provider interface {
	// Name identifies the provider in results and logs
	Name() string
	// Complete generates text for the request
	Complete(ctx context.Context, req Request) (*Completion, error)
	// Close releases any resources held by the provider
	Close() error
}

// ErrContentBlocked is returned when the provider refuses to produce content
// for safety reasons. Callers treat it as a safety violation.
var ErrContentBlocked = errors.New("content blocked by provider safety filter")

// NewProvider creates a provider based on configuration
func NewProvider(ctx context.Context, config *Config, apiKey string) (Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini, "":
		return NewGeminiProvider(ctx, apiKey)
	default:
		return nil, &Error{Message: "unsupported provider " + string(config.Provider)}
	}
}

// SplitSystem separates system messages from the conversation
func SplitSystem(messages []Message) (system string, rest []Message) {
	var systemParts []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	for i, part := range systemParts {
		if i > 0 {
			system += "\n\n"
		}
		system += part
	}
	return system, rest
}
