package idempotency

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an idempotency record
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Failure is the stored outcome of a failed operation
type Failure struct {
	Kind      string          `json:"kind"`
	Message   string          `json:"message"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Permanent bool            `json:"permanent"`
}

// Record is the cached state for one idempotency key
type Record struct {
	Key       string          `json:"key"`
	Resource  string          `json:"resource,omitempty"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Failure   *Failure        `json:"failure,omitempty"`
	Owner     string          `json:"owner"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Completed reports whether the record carries a memoized result
func (r *Record) Completed() bool {
	return r != nil && r.Status == StatusCompleted
}

// Replayable reports whether the record holds a permanent failure that is
// returned to callers instead of re-running the operation.
func (r *Record) Replayable() bool {
	return r != nil && r.Status == StatusFailed && r.Failure != nil && r.Failure.Permanent
}

// PermanentError is implemented by operation errors that must not be retried
// while the failed record is live. The detail is stored with the record so the
// error can be rebuilt for later callers.
type PermanentError interface {
	error
	FailureKind() string
	FailureDetail() (json.RawMessage, error)
}
