package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jonathan/decision-letters/internal/generation"
	"github.com/jonathan/decision-letters/internal/idempotency"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/pipeline"
	"github.com/jonathan/decision-letters/internal/types"
)

// conflictRetryAfter is advertised to callers that hit a held lock
const conflictRetryAfter = 1

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error      string                   `json:"error"`
	Kind       string                   `json:"kind,omitempty"`
	Field      string                   `json:"field,omitempty"`
	Lint       *lint.Result             `json:"lint,omitempty"`
	Text       string                   `json:"text,omitempty"`
	Matches    []generation.PhraseMatch `json:"matches,omitempty"`
	Warnings   []types.BiasWarning      `json:"warnings,omitempty"`
	Reason     string                   `json:"reason,omitempty"`
	Attempts   []string                 `json:"attempts,omitempty"`
	RetryAfter int                      `json:"retry_after,omitempty"`
	Previous   *PreviousRecord          `json:"previous,omitempty"`
}

// PreviousRecord is the idempotency record a conflicting call found
type PreviousRecord struct {
	Status      string          `json:"status"`
	FailureKind string          `json:"failure_kind,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func previousRecord(r *idempotency.Record) *PreviousRecord {
	if r == nil {
		return nil
	}
	prev := &PreviousRecord{Status: string(r.Status), Result: r.Result, UpdatedAt: r.UpdatedAt}
	if r.Failure != nil {
		prev.FailureKind = r.Failure.Kind
	}
	return prev
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch pipeline.ErrorKind(err) {
	case pipeline.KindValidation:
		return http.StatusBadRequest
	case pipeline.KindSafety:
		return http.StatusUnprocessableEntity
	case pipeline.KindConflict:
		return http.StatusConflict
	case pipeline.KindTimeout:
		return http.StatusGatewayTimeout
	case pipeline.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorBody describes err for clients. Internal failures carry no detail.
func NewErrorBody(err error) ErrorBody {
	kind := pipeline.ErrorKind(err)
	body := ErrorBody{Error: err.Error(), Kind: kind}

	var (
		invalid  *pipeline.ValidationError
		safety   *generation.SafetyError
		conflict *idempotency.ConflictError
		provider *generation.ProviderError
	)
	switch {
	case errors.As(err, &invalid):
		body.Field = invalid.Field
		body.Lint = invalid.Lint
	case errors.As(err, &safety):
		body.Text = safety.Text
		body.Matches = safety.Matches
		body.Warnings = safety.Warnings
	case errors.As(err, &conflict):
		body.Reason = string(conflict.Reason)
		body.RetryAfter = conflictRetryAfter
		body.Previous = previousRecord(conflict.Previous)
	case errors.As(err, &provider):
		for _, a := range provider.Attempts {
			body.Attempts = append(body.Attempts, a.String())
		}
	}
	if kind == pipeline.KindInternal || kind == pipeline.KindPersistence {
		body.Error = "internal error"
	}
	return body
}

// writeError maps err to a status and body and logs server-side failures
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := NewErrorBody(err)
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", body.RetryAfter))
	}
	if status >= http.StatusInternalServerError {
		log.Printf("[server] request failed (%s): %v", body.Kind, err)
	}
	s.jsonResponse(w, status, body)
}
