package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/decision-letters/internal/types"
)

// -----------------------------------------------------------------------------
// Decision Methods
// -----------------------------------------------------------------------------

// CreateDecision inserts a decision record and returns it with its generated id.
// A retry with the same idempotency key overwrites the earlier partial write
// and keeps its id.
func (db *DB) CreateDecision(ctx context.Context, input *DecisionInput) (*Decision, error) {
	reasons := input.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reasons: %w", err)
	}

	d := Decision{
		IdempotencyKey:  input.IdempotencyKey,
		ResourceName:    input.ResourceName,
		CandidateID:     input.CandidateID,
		JobTitle:        input.JobTitle,
		Jurisdiction:    input.Jurisdiction,
		Letter:          input.Letter,
		Reasons:         reasons,
		TemplateVersion: input.TemplateVersion,
		Provider:        input.Provider,
		Model:           input.Model,
		BiasScore:       input.BiasScore,
	}
	err = db.pool.QueryRow(ctx,
		`INSERT INTO decisions (idempotency_key, resource_name, candidate_id, job_title, jurisdiction,
		                        letter, reasons, template_version, provider, model, bias_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (idempotency_key) DO UPDATE SET
		     resource_name = EXCLUDED.resource_name,
		     candidate_id = EXCLUDED.candidate_id,
		     job_title = EXCLUDED.job_title,
		     jurisdiction = EXCLUDED.jurisdiction,
		     letter = EXCLUDED.letter,
		     reasons = EXCLUDED.reasons,
		     card = NULL,
		     template_version = EXCLUDED.template_version,
		     provider = EXCLUDED.provider,
		     model = EXCLUDED.model,
		     bias_score = EXCLUDED.bias_score,
		     updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		input.IdempotencyKey, input.ResourceName, input.CandidateID, input.JobTitle, input.Jurisdiction,
		input.Letter, reasonsJSON, input.TemplateVersion, input.Provider, input.Model, input.BiasScore,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision: %w", err)
	}
	return &d, nil
}

// UpdateDecisionCard stores the explainable card on an existing decision
func (db *DB) UpdateDecisionCard(ctx context.Context, id uuid.UUID, card types.ExplainableCard) error {
	cardJSON, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE decisions SET card = $1, updated_at = NOW() WHERE id = $2`,
		cardJSON, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update decision card: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("decision not found: %s", id)
	}
	return nil
}

// GetDecision retrieves a decision by id
func (db *DB) GetDecision(ctx context.Context, id uuid.UUID) (*Decision, error) {
	var d Decision
	var reasonsJSON, cardJSON []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, idempotency_key, resource_name, candidate_id, job_title, jurisdiction,
		        letter, reasons, card, template_version, provider, model, bias_score, created_at, updated_at
		 FROM decisions WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.IdempotencyKey, &d.ResourceName, &d.CandidateID, &d.JobTitle, &d.Jurisdiction,
		&d.Letter, &reasonsJSON, &cardJSON, &d.TemplateVersion, &d.Provider, &d.Model, &d.BiasScore,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	if err := json.Unmarshal(reasonsJSON, &d.Reasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
	}
	if len(cardJSON) > 0 {
		var card types.ExplainableCard
		if err := json.Unmarshal(cardJSON, &card); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card: %w", err)
		}
		d.Card = &card
	}
	return &d, nil
}
