// Package generation wraps generative providers with parameter ceilings, a
// primary/fallback route chain, per-attempt timeouts, memoization and a
// post-generation banned-phrase filter.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/decision-letters/internal/audit"
	"github.com/jonathan/decision-letters/internal/cache"
	"github.com/jonathan/decision-letters/internal/llm"
	"github.com/jonathan/decision-letters/internal/types"
)

// Hard ceilings applied to every request
const (
	MaxTemperature = 0.8
	MaxTokens      = 4000
	MaxTimeout     = 60 * time.Second

	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
	DefaultTimeout     = 30 * time.Second

	DefaultMemoTTL = time.Hour

	memoPrefix = "generation:memo:"
)

// Config holds caller-supplied generation parameters
type Config struct {
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// Sanitize clamps cfg to the hard ceilings. Zero or negative values take defaults.
func Sanitize(cfg Config) Config {
	switch {
	case cfg.Temperature < 0:
		cfg.Temperature = 0
	case cfg.Temperature > MaxTemperature:
		cfg.Temperature = MaxTemperature
	}
	switch {
	case cfg.MaxTokens <= 0:
		cfg.MaxTokens = DefaultMaxTokens
	case cfg.MaxTokens > MaxTokens:
		cfg.MaxTokens = MaxTokens
	}
	switch {
	case cfg.Timeout <= 0:
		cfg.Timeout = DefaultTimeout
	case cfg.Timeout > MaxTimeout:
		cfg.Timeout = MaxTimeout
	}
	return cfg
}

// Request is one letter generation
type Request struct {
	Messages       []llm.Message
	Config         Config
	IdempotencyKey string
	BannedPhrases  []string
}

// Result is a successful generation
type Result struct {
	Text         string    `json:"text"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Fallback     bool      `json:"fallback"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        llm.Usage `json:"usage"`
	Cached       bool      `json:"cached"`
}

// Route is one entry of the provider chain. A zero Timeout uses the request timeout.
type Route struct {
	Provider llm.Provider
	Model    string
	Timeout  time.Duration
}

// RoutesFromConfig builds the standard chain: the advanced tier first, then the lite tier
func RoutesFromConfig(provider llm.Provider, cfg *llm.Config) []Route {
	if cfg == nil {
		cfg = llm.DefaultConfig()
	}
	primary := cfg.GetModel(llm.TierAdvanced)
	fallback := cfg.GetModel(llm.TierLite)
	routes := []Route{{Provider: provider, Model: primary}}
	if fallback != "" && fallback != primary {
		routes = append(routes, Route{Provider: provider, Model: fallback})
	}
	return routes
}

// Options configures an Orchestrator
type Options struct {
	// Store memoizes results by idempotency key; nil disables memoization
	Store   cache.Store
	MemoTTL time.Duration
	Filter  *PhraseFilter
	Logger  *log.Logger
	Audit   audit.Sink
}

// Orchestrator generates letters through the route chain
type Orchestrator struct {
	routes  []Route
	store   cache.Store
	memoTTL time.Duration
	filter  *PhraseFilter
	logger  *log.Logger
	audit   audit.Sink
}

// NewOrchestrator creates an Orchestrator over routes, tried in order
func NewOrchestrator(routes []Route, opts Options) (*Orchestrator, error) {
	if len(routes) == 0 {
		return nil, &ConfigError{Message: "at least one route is required"}
	}
	for i, r := range routes {
		if r.Provider == nil || r.Model == "" {
			return nil, &ConfigError{Message: fmt.Sprintf("route %d needs a provider and a model", i)}
		}
	}
	if opts.MemoTTL <= 0 {
		opts.MemoTTL = DefaultMemoTTL
	}
	if opts.Filter == nil {
		opts.Filter = DefaultPhraseFilter()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Orchestrator{
		routes:  routes,
		store:   opts.Store,
		memoTTL: opts.MemoTTL,
		filter:  opts.Filter,
		logger:  opts.Logger,
		audit:   opts.Audit,
	}, nil
}

// Generate runs the request through the route chain. A safety violation
// stops the chain immediately; any other failure moves to the next route.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	cfg := Sanitize(req.Config)

	if cached := o.lookupMemo(ctx, req.IdempotencyKey); cached != nil {
		return cached, nil
	}

	var attempts []Attempt
	for i, route := range o.routes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timeout := cfg.Timeout
		if route.Timeout > 0 && route.Timeout < timeout {
			timeout = route.Timeout
		}

		start := time.Now()
		completion, err := o.attempt(ctx, route, llm.Request{
			Model:       route.Model,
			Messages:    req.Messages,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		}, timeout)
		elapsed := time.Since(start)

		if err != nil {
			if errors.Is(err, llm.ErrContentBlocked) {
				return nil, &SafetyError{
					Message:  "provider blocked the content",
					Provider: route.Provider.Name(),
					Model:    route.Model,
					Blocked:  true,
				}
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			a := Attempt{
				Provider: route.Provider.Name(),
				Model:    route.Model,
				Duration: elapsed,
				TimedOut: errors.Is(err, context.DeadlineExceeded),
				Err:      err,
			}
			attempts = append(attempts, a)
			if i < len(o.routes)-1 {
				o.logger.Printf("[generation] %s, trying next route", a)
			}
			continue
		}

		text := llm.CleanLetter(completion.Content)
		if matches := o.filter.Check(text, req.BannedPhrases); len(matches) > 0 {
			o.logger.Printf("[generation] %s/%s output rejected: %d banned phrase(s)", route.Provider.Name(), route.Model, len(matches))
			return nil, &SafetyError{
				Message:  "generated text contains banned phrases",
				Text:     text,
				Matches:  matches,
				Warnings: Warnings(matches),
				Provider: route.Provider.Name(),
				Model:    route.Model,
			}
		}

		result := &Result{
			Text:         text,
			Provider:     route.Provider.Name(),
			Model:        route.Model,
			Fallback:     i > 0,
			FinishReason: completion.FinishReason,
			Usage:        completion.Usage,
		}
		o.storeMemo(ctx, req.IdempotencyKey, result)
		audit.Emit(ctx, o.audit, o.logger, types.AuditEntry{
			Action:     types.ActionGenerationCompleted,
			EntityType: "generation",
			EntityID:   req.IdempotencyKey,
			Metadata: map[string]any{
				"provider":     result.Provider,
				"model":        result.Model,
				"fallback":     result.Fallback,
				"total_tokens": result.Usage.TotalTokens,
				"duration_ms":  elapsed.Milliseconds(),
			},
		})
		return result, nil
	}

	perr := &ProviderError{Attempts: attempts}
	for _, a := range attempts {
		if a.TimedOut {
			return nil, &TimeoutError{Attempt: a, Err: perr}
		}
	}
	return nil, perr
}

// attempt runs one provider call under a hard deadline. A provider that
// ignores cancellation is abandoned when the deadline passes.
func (o *Orchestrator) attempt(ctx context.Context, route Route, req llm.Request, timeout time.Duration) (*llm.Completion, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		completion *llm.Completion
		err        error
	}
	done := make(chan outcome, 1)
	go func() {
		c, err := route.Provider.Complete(attemptCtx, req)
		done <- outcome{c, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if attemptCtx.Err() != nil && !errors.Is(out.err, llm.ErrContentBlocked) {
				return nil, attemptCtx.Err()
			}
			return nil, out.err
		}
		if out.completion == nil || llm.CleanLetter(out.completion.Content) == "" {
			return nil, &llm.Error{Message: "empty completion"}
		}
		return out.completion, nil
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}

func (o *Orchestrator) lookupMemo(ctx context.Context, key string) *Result {
	if o.store == nil || key == "" {
		return nil
	}
	data, ok, err := o.store.Get(ctx, memoPrefix+key)
	if err != nil {
		o.logger.Printf("[generation] WARNING memo lookup failed for %s: %v", key, err)
		return nil
	}
	if !ok {
		return nil
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		o.logger.Printf("[generation] WARNING discarding unreadable memo for %s: %v", key, err)
		return nil
	}
	result.Cached = true
	return &result
}

func (o *Orchestrator) storeMemo(ctx context.Context, key string, result *Result) {
	if o.store == nil || key == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		o.logger.Printf("[generation] WARNING failed to encode memo for %s: %v", key, err)
		return
	}
	if err := o.store.Set(ctx, memoPrefix+key, data, o.memoTTL); err != nil {
		o.logger.Printf("[generation] WARNING failed to memoize %s: %v", key, err)
	}
}
