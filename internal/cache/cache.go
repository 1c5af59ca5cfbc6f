// Package cache provides the key-value store with expiry that holds locks and
// memoized results for the decision pipeline.
package cache

import (
	"context"
	"time"
)

// Store is the cache collaborator. Get/Set/Delete carry memoized values; the
// lease methods are single atomic operations used for locks.
type Store interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key; ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// AcquireLease sets key to owner with ttl if key is absent or already held by owner.
	// It reports whether owner holds the lease afterwards.
	AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// ReleaseLease deletes key only if it is held by owner
	ReleaseLease(ctx context.Context, key, owner string) (bool, error)
	// Close releases any resources held by the store
	Close() error
}
