package generation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/decision-letters/internal/types"
)

// FailureKindSafety identifies replayed safety failures
const FailureKindSafety = "safety"

// SafetyError is raised when text fails a content-safety check. It carries
// the rejected text so a reviewer can see exactly what was refused.
type SafetyError struct {
	Message  string              `json:"message"`
	Text     string              `json:"text,omitempty"`
	Matches  []PhraseMatch       `json:"matches,omitempty"`
	Warnings []types.BiasWarning `json:"warnings,omitempty"`
	Provider string              `json:"provider,omitempty"`
	Model    string              `json:"model,omitempty"`
	Blocked  bool                `json:"blocked,omitempty"`
}

func (e *SafetyError) Error() string {
	if len(e.Matches) > 0 {
		phrases := make([]string, 0, len(e.Matches))
		for _, m := range e.Matches {
			phrases = append(phrases, fmt.Sprintf("%q", m.Text))
		}
		return fmt.Sprintf("safety violation: %s: %s", e.Message, strings.Join(phrases, ", "))
	}
	return fmt.Sprintf("safety violation: %s", e.Message)
}

// FailureKind marks safety failures as permanent for idempotent replay
func (e *SafetyError) FailureKind() string {
	return FailureKindSafety
}

// FailureDetail serializes the error for replay
func (e *SafetyError) FailureDetail() (json.RawMessage, error) {
	return json.Marshal(e)
}

// DecodeSafetyError rebuilds a SafetyError from its replay detail
func DecodeSafetyError(detail json.RawMessage) (*SafetyError, error) {
	var e SafetyError
	if err := json.Unmarshal(detail, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Attempt records one provider call
type Attempt struct {
	Provider string
	Model    string
	Duration time.Duration
	TimedOut bool
	Err      error
}

func (a Attempt) String() string {
	status := "failed"
	if a.TimedOut {
		status = "timed out"
	}
	return fmt.Sprintf("%s/%s %s after %s: %v", a.Provider, a.Model, status, a.Duration.Round(time.Millisecond), a.Err)
}

// ProviderError is returned when every route failed
type ProviderError struct {
	Attempts []Attempt
}

func (e *ProviderError) Error() string {
	if len(e.Attempts) == 0 {
		return "provider error: no routes configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.String())
	}
	return fmt.Sprintf("provider error: all %d attempts failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// TimeoutError is a ProviderError in which at least one attempt hit its deadline.
// Attempt is the first attempt that timed out.
type TimeoutError struct {
	Attempt Attempt
	Err     *ProviderError
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider timeout: %s/%s exceeded its deadline: %v", e.Attempt.Provider, e.Attempt.Model, e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid orchestrator setup
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("generation config error: %s", e.Message)
}
