package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/decision-letters/internal/idempotency"
)

// DefaultBatchConcurrency bounds the decisions a batch generates at once
const DefaultBatchConcurrency = 4

// BatchRequest is a set of decisions generated together. The batch key makes
// the whole batch idempotent; each item still carries its own key.
type BatchRequest struct {
	BatchID        string    `json:"batch_id" validate:"required,max=128"`
	IdempotencyKey string    `json:"idempotency_key" validate:"required,max=255"`
	Items          []Request `json:"items" validate:"required,min=1,max=500,dive"`
}

// BatchItem is the outcome of one item. Exactly one of Result and Error is set.
type BatchItem struct {
	Index          int     `json:"index"`
	IdempotencyKey string  `json:"idempotency_key"`
	DecisionRef    string  `json:"decision_ref"`
	Result         *Result `json:"result,omitempty"`
	Error          string  `json:"error,omitempty"`
	ErrorKind      string  `json:"error_kind,omitempty"`
}

// BatchResult collects the item outcomes in request order
type BatchResult struct {
	BatchID   string      `json:"batch_id"`
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// GenerateBatch runs every item through Generate with bounded concurrency
// while holding the batch resource lock. Item failures are reported per item
// and never fail the batch.
func (s *Service) GenerateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if err := s.validateBatch(req); err != nil {
		return nil, err
	}

	resource := BatchResourcePrefix + req.BatchID
	lockTTL := s.batchLockTTL(len(req.Items))
	result, err := idempotency.Run(ctx, s.coordinator, req.IdempotencyKey, resource, idempotency.ExecuteOptions{LockTTL: lockTTL},
		func(ctx context.Context) (*BatchResult, error) {
			return s.runBatch(ctx, req), nil
		})
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

// batchLockTTL covers the worst case of every item running to its own lock
// TTL, one wave of BatchConcurrency items at a time.
func (s *Service) batchLockTTL(items int) time.Duration {
	concurrency := s.opts.BatchConcurrency
	waves := (items + concurrency - 1) / concurrency
	return time.Duration(waves)*s.opts.BatchItemBudget + s.coordinator.LockTTL()
}

func (s *Service) runBatch(ctx context.Context, req BatchRequest) *BatchResult {
	items := make([]BatchItem, len(req.Items))
	var mu sync.Mutex
	succeeded, failed := 0, 0

	var g errgroup.Group
	g.SetLimit(s.opts.BatchConcurrency)
	for i, item := range req.Items {
		g.Go(func() error {
			out := BatchItem{Index: i, IdempotencyKey: item.IdempotencyKey, DecisionRef: item.DecisionRef}
			res, err := s.Generate(ctx, item)
			if err != nil {
				out.Error = err.Error()
				out.ErrorKind = ErrorKind(err)
			} else {
				out.Result = res
			}

			mu.Lock()
			defer mu.Unlock()
			items[i] = out
			if err != nil {
				failed++
			} else {
				succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Printf("[pipeline] batch %s finished: %d succeeded, %d failed", req.BatchID, succeeded, failed)
	return &BatchResult{BatchID: req.BatchID, Items: items, Succeeded: succeeded, Failed: failed}
}

// validateBatch rejects the batch when any item is invalid or two items share a key or decision
func (s *Service) validateBatch(req BatchRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	if err := idempotency.ValidateKey(req.IdempotencyKey); err != nil {
		return &ValidationError{Message: "invalid idempotency key", Field: "idempotency_key", Cause: err}
	}
	keys := make(map[string]bool, len(req.Items))
	refs := make(map[string]bool, len(req.Items))
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if err := idempotency.ValidateKey(item.IdempotencyKey); err != nil {
			return &ValidationError{Message: "invalid idempotency key", Field: field + ".idempotency_key", Cause: err}
		}
		if item.IdempotencyKey == req.IdempotencyKey {
			return &ValidationError{Message: "item reuses the batch idempotency key", Field: field}
		}
		if keys[item.IdempotencyKey] {
			return &ValidationError{Message: "duplicate idempotency key " + item.IdempotencyKey, Field: field}
		}
		if refs[item.DecisionRef] {
			return &ValidationError{Message: "duplicate decision ref " + item.DecisionRef, Field: field}
		}
		keys[item.IdempotencyKey] = true
		refs[item.DecisionRef] = true
	}
	return nil
}
