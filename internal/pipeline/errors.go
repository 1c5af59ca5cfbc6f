package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonathan/decision-letters/internal/generation"
	"github.com/jonathan/decision-letters/internal/idempotency"
	"github.com/jonathan/decision-letters/internal/lint"
)

// FailureKindValidation identifies replayed validation failures
const FailureKindValidation = KindValidation

// ValidationError reports a malformed request, key, rubric or template. It is
// the caller's fault and is not retryable as-is.
type ValidationError struct {
	Message string       `json:"message"`
	Field   string       `json:"field,omitempty"`
	Lint    *lint.Result `json:"lint,omitempty"`
	Cause   error        `json:"-"`
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", msg)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// FailureKind marks validation failures as permanent for idempotent replay
func (e *ValidationError) FailureKind() string {
	return FailureKindValidation
}

// FailureDetail serializes the error for replay. The cause is flattened into the message.
func (e *ValidationError) FailureDetail() (json.RawMessage, error) {
	flat := *e
	if e.Cause != nil {
		flat.Message = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return json.Marshal(&flat)
}

func decodeValidationError(detail json.RawMessage) (*ValidationError, error) {
	var e ValidationError
	if err := json.Unmarshal(detail, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PersistenceError wraps a failure of the decision store
type PersistenceError struct {
	Message string
	Cause   error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("persistence error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("persistence error: %s", e.Message)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// Error kinds reported by ErrorKind
const (
	KindValidation  = "validation"
	KindSafety      = "safety"
	KindConflict    = "conflict"
	KindTimeout     = "timeout"
	KindProvider    = "provider"
	KindPersistence = "persistence"
	KindInternal    = "internal"
)

// ErrorKind classifies err into the pipeline error taxonomy
func ErrorKind(err error) string {
	var (
		invalid   *ValidationError
		keyErr    *idempotency.KeyError
		safety    *generation.SafetyError
		conflict  *idempotency.ConflictError
		timeout   *generation.TimeoutError
		provider  *generation.ProviderError
		persisted *PersistenceError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &keyErr):
		return KindValidation
	case errors.As(err, &safety):
		return KindSafety
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &provider):
		return KindProvider
	case errors.As(err, &persisted):
		return KindPersistence
	}
	return KindInternal
}
