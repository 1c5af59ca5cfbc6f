// Package audit exposes hooks for compliance events raised by the pipeline.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/decision-letters/internal/types"
)

// SystemActor is used when no caller identity is attached to the context
const SystemActor = "system"

// Sink receives audit entries
type Sink interface {
	Record(ctx context.Context, entry types.AuditEntry) error
}

// FuncSink adapts a function to Sink
type FuncSink func(ctx context.Context, entry types.AuditEntry) error

// Record implements Sink
func (f FuncSink) Record(ctx context.Context, entry types.AuditEntry) error {
	return f(ctx, entry)
}

// MultiSink fans an entry out to every sink and joins their errors
type MultiSink []Sink

// Record implements Sink
func (m MultiSink) Record(ctx context.Context, entry types.AuditEntry) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes entries as JSON lines to a logger
type LogSink struct {
	Logger *log.Logger
}

// Record implements Sink
func (l LogSink) Record(_ context.Context, entry types.AuditEntry) error {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return &Error{Message: "failed to encode audit entry", Cause: err}
	}
	logger.Printf("[audit] %s", data)
	return nil
}

// EntryWriter persists audit entries
type EntryWriter interface {
	CreateAuditEntry(ctx context.Context, entry *types.AuditEntry) error
}

// DBSink writes entries through an EntryWriter
type DBSink struct {
	Writer EntryWriter
}

// Record implements Sink
func (d DBSink) Record(ctx context.Context, entry types.AuditEntry) error {
	if d.Writer == nil {
		return &Error{Message: "db sink has no writer"}
	}
	if err := d.Writer.CreateAuditEntry(ctx, &entry); err != nil {
		return &Error{Message: "failed to persist audit entry", Cause: err}
	}
	return nil
}

type actorKey struct{}

// WithActor attaches the acting identity to ctx
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached to ctx, or SystemActor
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return SystemActor
}

// Emit fills in id, actor and timestamp and records the entry. Failures are
// logged and never returned so audit problems cannot mask the operation result.
func Emit(ctx context.Context, sink Sink, logger *log.Logger, entry types.AuditEntry) {
	if sink == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Actor == "" {
		entry.Actor = ActorFrom(ctx)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := sink.Record(ctx, entry); err != nil {
		if logger == nil {
			logger = log.Default()
		}
		logger.Printf("[audit] WARNING failed to record %s for %s %s: %v", entry.Action, entry.EntityType, entry.EntityID, err)
	}
}
