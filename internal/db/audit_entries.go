package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/decision-letters/internal/types"
)

// CreateAuditEntry stores an audit entry. A missing id or timestamp is filled in.
func (db *DB) CreateAuditEntry(ctx context.Context, entry *types.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return fmt.Errorf("invalid audit entry id %q: %w", entry.ID, err)
	}

	var metadataJSON []byte
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	if entry.Timestamp.IsZero() {
		err = db.pool.QueryRow(ctx,
			`INSERT INTO audit_entries (id, actor, action, entity_type, entity_id, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			id, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, metadataJSON,
		).Scan(&entry.Timestamp)
	} else {
		_, err = db.pool.Exec(ctx,
			`INSERT INTO audit_entries (id, actor, action, entity_type, entity_id, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, metadataJSON, entry.Timestamp,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries retrieves the most recent entries for an entity
func (db *DB) ListAuditEntries(ctx context.Context, entityType, entityID string, limit int) ([]types.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, actor, action, entity_type, entity_id, metadata, created_at
		 FROM audit_entries
		 WHERE entity_type = $1 AND entity_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`,
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var id uuid.UUID
		var metadataJSON []byte
		if err := rows.Scan(&id, &e.Actor, &e.Action, &e.EntityType, &e.EntityID, &metadataJSON, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ID = id.String()
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
