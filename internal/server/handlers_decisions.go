package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/decision-letters/internal/audit"
	"github.com/jonathan/decision-letters/internal/pipeline"
)

const (
	// IdempotencyKeyHeader carries the caller's idempotency key
	IdempotencyKeyHeader = "Idempotency-Key"
	// ActorHeader names the caller recorded in audit entries
	ActorHeader = "X-Actor"

	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// handleCreateDecision generates one decision
func (s *Server) handleCreateDecision(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDecision(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.decisions.Generate(requestContext(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set(IdempotencyKeyHeader, req.IdempotencyKey)
	s.jsonResponse(w, http.StatusOK, result)
}

// handleCreateDecisionStream generates one decision and streams progress as SSE
func (s *Server) handleCreateDecisionStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeDecision(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set(IdempotencyKeyHeader, req.IdempotencyKey)
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sse.Close()

	ctx := pipeline.WithProgress(requestContext(r), func(event pipeline.ProgressEvent) {
		sse.WriteEvent(eventProgress, event) //nolint:errcheck
	})
	result, err := s.decisions.Generate(ctx, req)
	if err != nil {
		sse.WriteError(NewErrorBody(err))
		return
	}
	sse.WriteComplete(result)
}

// handleCreateBatch generates a batch of decisions
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req pipeline.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &pipeline.ValidationError{Message: "invalid request body", Cause: err})
		return
	}
	if err := applyHeaderKey(r, &req.IdempotencyKey); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.decisions.GenerateBatch(requestContext(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set(IdempotencyKeyHeader, req.IdempotencyKey)
	s.jsonResponse(w, http.StatusOK, result)
}

// handleGetDecision returns a stored decision with its card
func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	decision, err := s.records.GetDecision(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if decision == nil {
		s.errorResponse(w, http.StatusNotFound, "decision not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, decision)
}

// handleGetReceipt returns the receipt of a stored decision
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	receipt, err := s.records.GetReceiptByDecision(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if receipt == nil {
		s.errorResponse(w, http.StatusNotFound, "receipt not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, receipt)
}

// handleListAudit returns the audit trail of a decision, newest first
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, &pipeline.ValidationError{Message: "limit must be a positive integer", Field: "limit"})
			return
		}
		limit = min(n, maxAuditLimit)
	}

	entries, err := s.records.ListAuditEntries(r.Context(), "decision", id.String(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"decision_id": id, "entries": entries})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, &pipeline.ValidationError{Message: "invalid decision id", Field: "id", Cause: err})
		return uuid.Nil, false
	}
	return id, true
}

func decodeDecision(r *http.Request) (pipeline.Request, error) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, &pipeline.ValidationError{Message: "invalid request body", Cause: err}
	}
	if err := applyHeaderKey(r, &req.IdempotencyKey); err != nil {
		return req, err
	}
	return req, nil
}

// applyHeaderKey fills key from the Idempotency-Key header. A header that
// disagrees with the body is rejected.
func applyHeaderKey(r *http.Request, key *string) error {
	header := r.Header.Get(IdempotencyKeyHeader)
	switch {
	case header == "":
		return nil
	case *key == "":
		*key = header
		return nil
	case *key != header:
		return &pipeline.ValidationError{
			Message: "Idempotency-Key header does not match the body idempotency_key",
			Field:   "idempotency_key",
		}
	}
	return nil
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if actor := r.Header.Get(ActorHeader); actor != "" {
		ctx = audit.WithActor(ctx, actor)
	}
	return ctx
}
