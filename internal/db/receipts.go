package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/decision-letters/internal/types"
)

// CreateReceipt stores an explainable receipt and returns its id. A decision
// has at most one receipt; storing another replaces it.
func (db *DB) CreateReceipt(ctx context.Context, receipt types.ExplainableReceipt) (uuid.UUID, error) {
	decisionID, err := uuid.Parse(receipt.DecisionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid decision id %q: %w", receipt.DecisionID, err)
	}

	var id uuid.UUID
	err = db.pool.QueryRow(ctx,
		`INSERT INTO explainable_receipts (decision_id, hash, signature, algorithm, card_version, template_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (decision_id) DO UPDATE SET
		     hash = EXCLUDED.hash,
		     signature = EXCLUDED.signature,
		     algorithm = EXCLUDED.algorithm,
		     card_version = EXCLUDED.card_version,
		     template_version = EXCLUDED.template_version,
		     created_at = EXCLUDED.created_at
		 RETURNING id`,
		decisionID, receipt.Hash, receipt.Signature, receipt.Algorithm,
		receipt.CardVersion, receipt.TemplateVersion, receipt.CreatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create receipt: %w", err)
	}
	return id, nil
}

// GetReceiptByDecision retrieves the receipt for a decision
func (db *DB) GetReceiptByDecision(ctx context.Context, decisionID uuid.UUID) (*types.ExplainableReceipt, error) {
	var r types.ExplainableReceipt
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT decision_id, hash, signature, algorithm, card_version, template_version, created_at
		 FROM explainable_receipts WHERE decision_id = $1`,
		decisionID,
	).Scan(&id, &r.Hash, &r.Signature, &r.Algorithm, &r.CardVersion, &r.TemplateVersion, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	r.DecisionID = id.String()
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
