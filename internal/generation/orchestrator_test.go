package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/decision-letters/internal/audit"
	"github.com/jonathan/decision-letters/internal/cache"
	"github.com/jonathan/decision-letters/internal/llm"
	"github.com/jonathan/decision-letters/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider is a function-field fake for llm.Provider
type MockProvider struct {
	NameValue    string
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Completion, error)
	calls        int32
}

func (m *MockProvider) Name() string { return m.NameValue }

func (m *MockProvider) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.CompleteFunc(ctx, req)
}

func (m *MockProvider) Close() error { return nil }

func (m *MockProvider) Calls() int { return int(atomic.LoadInt32(&m.calls)) }

func textProvider(name, text string) *MockProvider {
	return &MockProvider{
		NameValue: name,
		CompleteFunc: func(context.Context, llm.Request) (*llm.Completion, error) {
			return &llm.Completion{Content: text, FinishReason: "stop", Usage: llm.Usage{TotalTokens: 42}}, nil
		},
	}
}

func failingProvider(name string, err error) *MockProvider {
	return &MockProvider{
		NameValue: name,
		CompleteFunc: func(context.Context, llm.Request) (*llm.Completion, error) {
			return nil, err
		},
	}
}

func hangingProvider(name string) *MockProvider {
	return &MockProvider{
		NameValue: name,
		CompleteFunc: func(ctx context.Context, _ llm.Request) (*llm.Completion, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newOrchestrator(t *testing.T, routes []Route, opts Options) *Orchestrator {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	o, err := NewOrchestrator(routes, opts)
	require.NoError(t, err)
	return o
}

var letterMessages = []llm.Message{
	{Role: llm.RoleSystem, Content: "You write respectful letters."},
	{Role: llm.RoleUser, Content: "Write the letter."},
}

const cleanLetter = "Dear Ada,\n\nThank you for interviewing with us. We will not be moving forward.\n\nSincerely,\nThe Hiring Team"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    Config
		expected Config
	}{
		{"defaults", Config{}, Config{Temperature: 0, MaxTokens: DefaultMaxTokens, Timeout: DefaultTimeout}},
		{"within limits", Config{Temperature: 0.5, MaxTokens: 800, Timeout: 10 * time.Second}, Config{Temperature: 0.5, MaxTokens: 800, Timeout: 10 * time.Second}},
		{"over ceilings", Config{Temperature: 1.7, MaxTokens: 100000, Timeout: 5 * time.Minute}, Config{Temperature: MaxTemperature, MaxTokens: MaxTokens, Timeout: MaxTimeout}},
		{"negative", Config{Temperature: -1, MaxTokens: -5, Timeout: -time.Second}, Config{Temperature: 0, MaxTokens: DefaultMaxTokens, Timeout: DefaultTimeout}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(nil, Options{})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewOrchestrator([]Route{{Provider: textProvider("p", "x")}}, Options{})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "route 0")
}

func TestRoutesFromConfig(t *testing.T) {
	p := textProvider("gemini", "x")
	routes := RoutesFromConfig(p, llm.DefaultConfig())
	require.Len(t, routes, 2)
	assert.Equal(t, "gemini-2.5-pro", routes[0].Model)
	assert.Equal(t, "gemini-2.5-flash-lite", routes[1].Model)

	single := RoutesFromConfig(p, &llm.Config{Models: map[llm.ModelTier]string{llm.TierStandard: "only"}})
	require.Len(t, single, 1)
	assert.Equal(t, "only", single[0].Model)
}

func TestGenerate_PrimarySuccess(t *testing.T) {
	primary := textProvider("primary", "```\n"+cleanLetter+"\n```")
	fallback := textProvider("fallback", "unused")
	o := newOrchestrator(t, []Route{
		{Provider: primary, Model: "big"},
		{Provider: fallback, Model: "small"},
	}, Options{})

	result, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	require.NoError(t, err)
	assert.Equal(t, cleanLetter, result.Text)
	assert.Equal(t, "primary", result.Provider)
	assert.Equal(t, "big", result.Model)
	assert.False(t, result.Fallback)
	assert.False(t, result.Cached)
	assert.Equal(t, 42, result.Usage.TotalTokens)
	assert.Equal(t, 0, fallback.Calls())
}

func TestGenerate_PassesSanitizedParameters(t *testing.T) {
	var got llm.Request
	p := &MockProvider{
		NameValue: "p",
		CompleteFunc: func(_ context.Context, req llm.Request) (*llm.Completion, error) {
			got = req
			return &llm.Completion{Content: cleanLetter}, nil
		},
	}
	o := newOrchestrator(t, []Route{{Provider: p, Model: "m"}}, Options{})

	_, err := o.Generate(context.Background(), Request{
		Messages: letterMessages,
		Config:   Config{Temperature: 2, MaxTokens: 9000, Timeout: time.Hour},
	})
	require.NoError(t, err)
	assert.Equal(t, MaxTemperature, got.Temperature)
	assert.Equal(t, MaxTokens, got.MaxTokens)
	assert.Equal(t, MaxTimeout, got.Timeout)
	assert.Equal(t, letterMessages, got.Messages)
}

func TestGenerate_FallbackOnProviderError(t *testing.T) {
	primary := failingProvider("primary", errors.New("503 unavailable"))
	fallback := textProvider("fallback", cleanLetter)
	o := newOrchestrator(t, []Route{
		{Provider: primary, Model: "big"},
		{Provider: fallback, Model: "small"},
	}, Options{})

	result, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	require.NoError(t, err)
	assert.True(t, result.Fallback)
	assert.Equal(t, "fallback", result.Provider)
	assert.Equal(t, "small", result.Model)
	assert.Equal(t, 1, primary.Calls())
}

func TestGenerate_FallbackOnEmptyCompletion(t *testing.T) {
	primary := textProvider("primary", "   ")
	fallback := textProvider("fallback", cleanLetter)
	o := newOrchestrator(t, []Route{
		{Provider: primary, Model: "big"},
		{Provider: fallback, Model: "small"},
	}, Options{})

	result, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	require.NoError(t, err)
	assert.True(t, result.Fallback)
}

func TestGenerate_AllRoutesFail(t *testing.T) {
	errA := errors.New("quota exceeded")
	errB := errors.New("bad gateway")
	o := newOrchestrator(t, []Route{
		{Provider: failingProvider("a", errA), Model: "big"},
		{Provider: failingProvider("b", errB), Model: "small"},
	}, Options{})

	_, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Attempts, 2)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	var terr *TimeoutError
	assert.False(t, errors.As(err, &terr))
}

func TestGenerate_TimeoutPerAttempt(t *testing.T) {
	primary := hangingProvider("primary")
	fallback := textProvider("fallback", cleanLetter)
	o := newOrchestrator(t, []Route{
		{Provider: primary, Model: "big", Timeout: 20 * time.Millisecond},
		{Provider: fallback, Model: "small"},
	}, Options{})

	result, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	require.NoError(t, err)
	assert.True(t, result.Fallback)
}

func TestGenerate_TimeoutError(t *testing.T) {
	o := newOrchestrator(t, []Route{
		{Provider: hangingProvider("primary"), Model: "big", Timeout: 10 * time.Millisecond},
		{Provider: failingProvider("fallback", errors.New("500")), Model: "small"},
	}, Options{})

	_, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "primary", terr.Attempt.Provider)
	assert.True(t, terr.Attempt.TimedOut)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr, "a timeout is a provider error")
	assert.Len(t, perr.Attempts, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerate_AbandonsUncooperativeProvider(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := &MockProvider{
		NameValue: "stuck",
		CompleteFunc: func(context.Context, llm.Request) (*llm.Completion, error) {
			<-release
			return &llm.Completion{Content: cleanLetter}, nil
		},
	}
	o := newOrchestrator(t, []Route{{Provider: stuck, Model: "m", Timeout: 20 * time.Millisecond}}, Options{})

	start := time.Now()
	_, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	var terr *TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerate_SafetyErrorStopsChain(t *testing.T) {
	primary := textProvider("primary", "Dear Ada,\n\nWe understand you are pregnant, so we will not proceed.")
	fallback := textProvider("fallback", cleanLetter)
	o := newOrchestrator(t, []Route{
		{Provider: primary, Model: "big"},
		{Provider: fallback, Model: "small"},
	}, Options{})

	_, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	var safety *SafetyError
	require.ErrorAs(t, err, &safety)
	assert.Contains(t, safety.Text, "pregnant")
	require.Len(t, safety.Matches, 1)
	assert.Equal(t, types.CategoryPregnancyFamily, safety.Matches[0].Category)
	require.Len(t, safety.Warnings, 1)
	assert.Equal(t, types.SeverityCritical, safety.Warnings[0].Severity)
	assert.Equal(t, "primary", safety.Provider)
	assert.Equal(t, 0, fallback.Calls(), "a safety failure is never retried on another model")
}

func TestGenerate_RequestSpecificBannedPhrases(t *testing.T) {
	o := newOrchestrator(t, []Route{{Provider: textProvider("p", cleanLetter), Model: "m"}}, Options{})

	_, err := o.Generate(context.Background(), Request{
		Messages:      letterMessages,
		BannedPhrases: []string{"moving   forward"},
	})
	var safety *SafetyError
	require.ErrorAs(t, err, &safety)
	assert.Equal(t, "moving forward", safety.Matches[0].Text)
	assert.Empty(t, safety.Matches[0].Category)
}

func TestGenerate_BlockedContentIsSafetyError(t *testing.T) {
	primary := failingProvider("primary", fmt.Errorf("%w: prompt blocked", llm.ErrContentBlocked))
	fallback := textProvider("fallback", cleanLetter)
	o := newOrchestrator(t, []Route{
		{Provider: primary, Model: "big"},
		{Provider: fallback, Model: "small"},
	}, Options{})

	_, err := o.Generate(context.Background(), Request{Messages: letterMessages})
	var safety *SafetyError
	require.ErrorAs(t, err, &safety)
	assert.True(t, safety.Blocked)
	assert.Equal(t, 0, fallback.Calls())
}

func TestGenerate_MemoizedByIdempotencyKey(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	p := textProvider("p", cleanLetter)
	o := newOrchestrator(t, []Route{{Provider: p, Model: "m"}}, Options{Store: store})
	req := Request{Messages: letterMessages, IdempotencyKey: "decision:0123456789abcdef"}

	first, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, p.Calls())

	_, err = o.Generate(context.Background(), Request{Messages: letterMessages})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Calls(), "requests without a key are not memoized")
}

func TestGenerate_MemoExpiresAfterTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore(func() time.Time { return now })
	p := textProvider("p", cleanLetter)
	o := newOrchestrator(t, []Route{{Provider: p, Model: "m"}}, Options{Store: store})
	req := Request{Messages: letterMessages, IdempotencyKey: "decision:0123456789abcdef"}

	_, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	now = now.Add(DefaultMemoTTL)
	result, err := o.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, p.Calls())
}

func TestGenerate_EmitsAudit(t *testing.T) {
	var entries []types.AuditEntry
	sink := audit.FuncSink(func(_ context.Context, e types.AuditEntry) error {
		entries = append(entries, e)
		return nil
	})
	o := newOrchestrator(t, []Route{{Provider: textProvider("p", cleanLetter), Model: "m"}}, Options{Audit: sink})

	_, err := o.Generate(context.Background(), Request{Messages: letterMessages, IdempotencyKey: "decision:0123456789abcdef"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ActionGenerationCompleted, entries[0].Action)
	assert.Equal(t, "m", entries[0].Metadata["model"])
}

func TestGenerate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := textProvider("p", cleanLetter)
	o := newOrchestrator(t, []Route{{Provider: p, Model: "m"}}, Options{})

	_, err := o.Generate(ctx, Request{Messages: letterMessages})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Calls())
}

func TestSafetyError_RoundTripDetail(t *testing.T) {
	original := &SafetyError{
		Message: "generated text contains banned phrases",
		Text:    "you are pregnant",
		Matches: []PhraseMatch{{Phrase: "pregnant", Category: types.CategoryPregnancyFamily, Text: "pregnant", Start: 8, End: 16}},
	}
	detail, err := original.FailureDetail()
	require.NoError(t, err)

	decoded, err := DecodeSafetyError(detail)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
	assert.Equal(t, FailureKindSafety, decoded.FailureKind())
	assert.Contains(t, decoded.Error(), `"pregnant"`)
}
