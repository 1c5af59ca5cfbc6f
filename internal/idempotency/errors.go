package idempotency

import "fmt"

// KeyError reports a malformed idempotency key
type KeyError struct {
	Key     string
	Message string
	Cause   error
}

func (e *KeyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid idempotency key: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid idempotency key: %s", e.Message)
}

func (e *KeyError) Unwrap() error {
	return e.Cause
}

// ConflictReason explains why Execute could not proceed
type ConflictReason string

const (
	// ReasonInProgress means another caller holds the key
	ReasonInProgress ConflictReason = "in_progress"
	// ReasonResourceBusy means another key holds the resource
	ReasonResourceBusy ConflictReason = "resource_busy"
)

// ConflictError signals a retryable lock conflict. Previous carries the last
// known record for the key when there is one.
type ConflictError struct {
	Key      string
	Resource string
	Reason   ConflictReason
	Previous *Record
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case ReasonResourceBusy:
		return fmt.Sprintf("resource %q is busy", e.Resource)
	default:
		return fmt.Sprintf("operation for idempotency key %q is already in progress", e.Key)
	}
}

// ReplayedError is returned for a key whose operation already failed permanently
type ReplayedError struct {
	Key     string
	Failure Failure
}

func (e *ReplayedError) Error() string {
	return fmt.Sprintf("operation for idempotency key %q previously failed (%s): %s", e.Key, e.Failure.Kind, e.Failure.Message)
}

// StoreError wraps a failure of the cache collaborator
type StoreError struct {
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("idempotency store error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("idempotency store error: %s", e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
