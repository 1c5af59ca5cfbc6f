package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/decision-letters/internal/types"
)

// DecisionInput is the data written when a decision is created
type DecisionInput struct {
	IdempotencyKey  string
	ResourceName    string
	CandidateID     string
	JobTitle        string
	Jurisdiction    string
	Letter          string
	Reasons         []string
	TemplateVersion string
	Provider        string
	Model           string
	BiasScore       int
}

// Decision represents a stored decision record
type Decision struct {
	ID              uuid.UUID              `json:"id"`
	IdempotencyKey  string                 `json:"idempotency_key"`
	ResourceName    string                 `json:"resource_name"`
	CandidateID     string                 `json:"candidate_id"`
	JobTitle        string                 `json:"job_title"`
	Jurisdiction    string                 `json:"jurisdiction"`
	Letter          string                 `json:"letter"`
	Reasons         []string               `json:"reasons"`
	Card            *types.ExplainableCard `json:"card,omitempty"`
	TemplateVersion string                 `json:"template_version"`
	Provider        string                 `json:"provider"`
	Model           string                 `json:"model"`
	BiasScore       int                    `json:"bias_score"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}
