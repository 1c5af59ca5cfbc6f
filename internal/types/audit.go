package types

import "time"

// Audit actions emitted by the decision pipeline
const (
	ActionDecisionGenerated     = "decision.generated"
	ActionGenerationCompleted   = "generation.completed"
	ActionBiasCheckFailed       = "bias_check.failed"
	ActionIdempotencyContention = "idempotency.contention"
)

// AuditEntry is one structured compliance event
type AuditEntry struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
