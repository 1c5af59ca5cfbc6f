package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/pipeline"
	"github.com/jonathan/decision-letters/internal/types"
)

// LintRequest is the body of POST /v1/templates/lint
type LintRequest struct {
	Template string        `json:"template"`
	Context  *lint.Context `json:"context,omitempty"`
}

// BiasCheckRequest is the body of POST /v1/bias/check
type BiasCheckRequest struct {
	Text         string `json:"text"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
}

// BiasCheckResponse is the result of a bias check
type BiasCheckResponse struct {
	Jurisdiction string              `json:"jurisdiction"`
	Passed       bool                `json:"passed"`
	Score        int                 `json:"score"`
	Warnings     []types.BiasWarning `json:"warnings"`
}

// VerifyReceiptRequest is the body of POST /v1/receipts/verify. Card and
// payload are optional; when both are given the hash is recomputed too.
type VerifyReceiptRequest struct {
	Receipt *types.ExplainableReceipt `json:"receipt"`
	Card    *types.ExplainableCard    `json:"card,omitempty"`
	Payload *types.DecisionPayload    `json:"payload,omitempty"`
}

// VerifyReceiptResponse reports which checks passed. ContentsValid is absent
// when only the signature was checked.
type VerifyReceiptResponse struct {
	DecisionID     string `json:"decision_id"`
	SignatureValid bool   `json:"signature_valid"`
	ContentsValid  *bool  `json:"contents_valid,omitempty"`
}

// handleLintTemplate lints a letter template
func (s *Server) handleLintTemplate(w http.ResponseWriter, r *http.Request) {
	var req LintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &pipeline.ValidationError{Message: "invalid request body", Cause: err})
		return
	}
	ctx := lint.DefaultContext()
	if req.Context != nil {
		ctx = *req.Context
	}
	s.jsonResponse(w, http.StatusOK, s.linter.Lint(req.Template, ctx))
}

// handleBiasCheck scans text for biased language
func (s *Server) handleBiasCheck(w http.ResponseWriter, r *http.Request) {
	var req BiasCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &pipeline.ValidationError{Message: "invalid request body", Cause: err})
		return
	}
	if req.Text == "" {
		s.writeError(w, &pipeline.ValidationError{Message: "text is required", Field: "text"})
		return
	}

	result := s.detector.Detect(req.Text, req.Jurisdiction)
	s.jsonResponse(w, http.StatusOK, BiasCheckResponse{
		Jurisdiction: string(bias.NormalizeJurisdiction(req.Jurisdiction)),
		Passed:       result.Passed,
		Score:        result.Score,
		Warnings:     result.Warnings,
	})
}

// handleVerifyReceipt checks a receipt signature and optionally its contents
func (s *Server) handleVerifyReceipt(w http.ResponseWriter, r *http.Request) {
	var req VerifyReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &pipeline.ValidationError{Message: "invalid request body", Cause: err})
		return
	}
	if req.Receipt == nil {
		s.writeError(w, &pipeline.ValidationError{Message: "receipt is required", Field: "receipt"})
		return
	}
	if (req.Card == nil) != (req.Payload == nil) {
		s.writeError(w, &pipeline.ValidationError{Message: "card and payload must be given together", Field: "card"})
		return
	}

	resp := VerifyReceiptResponse{
		DecisionID:     req.Receipt.DecisionID,
		SignatureValid: s.cards.VerifyReceipt(*req.Receipt),
	}
	if req.Card != nil {
		ok, err := s.cards.VerifyContents(*req.Receipt, *req.Card, *req.Payload)
		if err != nil {
			s.writeError(w, &pipeline.ValidationError{Message: "cannot hash card and payload", Field: "card", Cause: err})
			return
		}
		resp.ContentsValid = &ok
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
