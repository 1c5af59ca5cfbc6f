// Package idempotency runs operations exactly once per caller-supplied key
// using leases held in the cache collaborator.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/decision-letters/internal/audit"
	"github.com/jonathan/decision-letters/internal/cache"
	"github.com/jonathan/decision-letters/internal/types"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultLockTTL       = 3 * time.Minute
	DefaultInProgressTTL = 5 * time.Minute
	DefaultFailedTTL     = 5 * time.Minute
	DefaultWaitInterval  = time.Second

	recordPrefix   = "idempotency:record:"
	keyLockPrefix  = "idempotency:lock:"
	resourcePrefix = "lock:resource:"

	cleanupTimeout = 5 * time.Second
)

// Options configures a Coordinator. Zero values take the defaults.
type Options struct {
	TTL           time.Duration
	LockTTL       time.Duration
	InProgressTTL time.Duration
	FailedTTL     time.Duration
	WaitInterval  time.Duration
	Logger        *log.Logger
	Audit         audit.Sink
	Now           func() time.Time
}

// ExecuteOptions overrides the completed-record TTL and lock TTL for one call
type ExecuteOptions struct {
	TTL     time.Duration
	LockTTL time.Duration
}

// Operation is the work guarded by the coordinator
type Operation func(ctx context.Context) (json.RawMessage, error)

// Coordinator provides exactly-once execution per key and mutual exclusion per resource
type Coordinator struct {
	store cache.Store
	opts  Options
}

// NewCoordinator creates a Coordinator over store
func NewCoordinator(store cache.Store, opts Options) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.InProgressTTL <= 0 {
		opts.InProgressTTL = DefaultInProgressTTL
	}
	if opts.FailedTTL <= 0 {
		opts.FailedTTL = DefaultFailedTTL
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = DefaultWaitInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{store: store, opts: opts}
}

// LockTTL returns the default lease duration for key and resource locks
func (c *Coordinator) LockTTL() time.Duration {
	return c.opts.LockTTL
}

// Execute runs op at most once for key. Callers that find the key held
// receive a *ConflictError; callers that find a memoized result receive it
// without running op. A non-empty resource is locked for the duration of op.
func (c *Coordinator) Execute(ctx context.Context, key, resource string, opts ExecuteOptions, op Operation) (json.RawMessage, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.opts.TTL
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = c.opts.LockTTL
	}

	record, err := c.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if result, done, err := c.settled(key, record); done {
		return result, err
	}

	owner := uuid.NewString()
	keyLock := keyLockPrefix + key
	acquired, err := c.acquire(ctx, keyLock, owner, lockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		record, err = c.Lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if result, done, err := c.settled(key, record); done {
			return result, err
		}
		acquired, err = c.acquire(ctx, keyLock, owner, lockTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			c.contention(ctx, key, resource, ReasonInProgress)
			return nil, &ConflictError{Key: key, Resource: resource, Reason: ReasonInProgress, Previous: record}
		}
	}

	// A holder may have completed between our lookup and our acquire.
	record, err = c.Lookup(ctx, key)
	if err != nil {
		c.release(ctx, keyLock, owner)
		return nil, err
	}
	if result, done, err := c.settled(key, record); done {
		c.release(ctx, keyLock, owner)
		return result, err
	}

	var resourceLock string
	if resource != "" {
		resourceLock = resourcePrefix + resource
		acquired, err := c.acquire(ctx, resourceLock, owner, lockTTL)
		if err != nil {
			c.release(ctx, keyLock, owner)
			return nil, err
		}
		if !acquired {
			c.release(ctx, keyLock, owner)
			c.contention(ctx, key, resource, ReasonResourceBusy)
			return nil, &ConflictError{Key: key, Resource: resource, Reason: ReasonResourceBusy, Previous: record}
		}
	}
	defer func() {
		if resourceLock != "" {
			c.release(ctx, resourceLock, owner)
		}
		c.release(ctx, keyLock, owner)
	}()

	// The in-progress record must outlive the locks it describes.
	inProgressTTL := max(c.opts.InProgressTTL, lockTTL)
	inProgress := &Record{Key: key, Resource: resource, Status: StatusInProgress, Owner: owner, UpdatedAt: c.opts.Now().UTC()}
	if err := c.save(ctx, inProgress, inProgressTTL); err != nil {
		return nil, err
	}

	result, opErr := op(ctx)
	if opErr != nil {
		failed := &Record{
			Key:       key,
			Resource:  resource,
			Status:    StatusFailed,
			Failure:   failureFrom(opErr),
			Owner:     owner,
			UpdatedAt: c.opts.Now().UTC(),
		}
		if err := c.save(ctx, failed, c.opts.FailedTTL); err != nil {
			c.opts.Logger.Printf("[idempotency] WARNING failed to record failure for key %s: %v", key, err)
		}
		return nil, opErr
	}

	completed := &Record{
		Key:       key,
		Resource:  resource,
		Status:    StatusCompleted,
		Result:    result,
		Owner:     owner,
		UpdatedAt: c.opts.Now().UTC(),
	}
	if err := c.save(ctx, completed, ttl); err != nil {
		c.opts.Logger.Printf("[idempotency] WARNING failed to memoize result for key %s: %v", key, err)
	}
	return result, nil
}

// Lookup returns the live record for key, or nil
func (c *Coordinator) Lookup(ctx context.Context, key string) (*Record, error) {
	data, ok, err := c.store.Get(ctx, recordPrefix+key)
	if err != nil {
		return nil, &StoreError{Message: "failed to read record " + key, Cause: err}
	}
	if !ok {
		return nil, nil
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		c.opts.Logger.Printf("[idempotency] WARNING discarding unreadable record for key %s: %v", key, err)
		return nil, nil
	}
	return &record, nil
}

// Forget deletes the record for key so the next call re-executes
func (c *Coordinator) Forget(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, recordPrefix+key); err != nil {
		return &StoreError{Message: "failed to delete record " + key, Cause: err}
	}
	return nil
}

// settled reports whether record already decides the outcome
func (c *Coordinator) settled(key string, record *Record) (json.RawMessage, bool, error) {
	switch {
	case record.Completed():
		return record.Result, true, nil
	case record.Replayable():
		return nil, true, &ReplayedError{Key: key, Failure: *record.Failure}
	default:
		return nil, false, nil
	}
}

func (c *Coordinator) acquire(ctx context.Context, lock, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.store.AcquireLease(ctx, lock, owner, ttl)
	if err != nil {
		return false, &StoreError{Message: "failed to acquire " + lock, Cause: err}
	}
	return ok, nil
}

// release is best-effort; the lease may already have expired
func (c *Coordinator) release(ctx context.Context, lock, owner string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	released, err := c.store.ReleaseLease(cleanupCtx, lock, owner)
	if err != nil {
		c.opts.Logger.Printf("[idempotency] WARNING failed to release %s: %v", lock, err)
		return
	}
	if !released {
		c.opts.Logger.Printf("[idempotency] lease %s expired before release", lock)
	}
}

func (c *Coordinator) save(ctx context.Context, record *Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return &StoreError{Message: "failed to encode record " + record.Key, Cause: err}
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := c.store.Set(saveCtx, recordPrefix+record.Key, data, ttl); err != nil {
		return &StoreError{Message: "failed to write record " + record.Key, Cause: err}
	}
	return nil
}

func (c *Coordinator) wait(ctx context.Context) error {
	timer := time.NewTimer(c.opts.WaitInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) contention(ctx context.Context, key, resource string, reason ConflictReason) {
	c.opts.Logger.Printf("[idempotency] contention on key %s resource %q: %s", key, resource, reason)
	audit.Emit(ctx, c.opts.Audit, c.opts.Logger, types.AuditEntry{
		Action:     types.ActionIdempotencyContention,
		EntityType: "idempotency_key",
		EntityID:   key,
		Metadata: map[string]any{
			"resource": resource,
			"reason":   string(reason),
		},
	})
}

func failureFrom(err error) *Failure {
	var permanent PermanentError
	if errors.As(err, &permanent) {
		failure := &Failure{Kind: permanent.FailureKind(), Message: permanent.Error(), Permanent: true}
		if detail, derr := permanent.FailureDetail(); derr == nil {
			failure.Detail = detail
		}
		return failure
	}
	return &Failure{Kind: "error", Message: err.Error()}
}

// Run is Execute for typed results
func Run[T any](ctx context.Context, c *Coordinator, key, resource string, opts ExecuteOptions, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := c.Execute(ctx, key, resource, opts, func(ctx context.Context) (json.RawMessage, error) {
		value, err := op(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, &StoreError{Message: "failed to encode result", Cause: err}
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, &StoreError{Message: "failed to decode memoized result for " + key, Cause: err}
	}
	return value, nil
}
