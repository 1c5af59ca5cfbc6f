package cache

import (
	"context"
	"log"
	"time"
)

// FallbackStore serves calls from a process-local store whenever the shared
// store fails. In degraded mode locks and memoized results are per-process,
// so the cross-process exactly-once guarantee does not hold.
type FallbackStore struct {
	primary Store
	local   *MemoryStore
	logger  *log.Logger
}

// NewFallbackStore wraps primary. A nil logger uses log.Default().
func NewFallbackStore(primary Store, local *MemoryStore, logger *log.Logger) *FallbackStore {
	if local == nil {
		local = NewMemoryStore(nil)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &FallbackStore{primary: primary, local: local, logger: logger}
}

func (f *FallbackStore) degrade(op, key string, err error) {
	f.logger.Printf("[cache] WARNING shared store %s %q failed, using process-local cache: %v", op, key, err)
}

// Get implements Store
func (f *FallbackStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok, err := f.primary.Get(ctx, key)
	if err != nil {
		f.degrade("get", key, err)
		return f.local.Get(ctx, key)
	}
	return value, ok, nil
}

// Set implements Store
func (f *FallbackStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.primary.Set(ctx, key, value, ttl); err != nil {
		f.degrade("set", key, err)
		return f.local.Set(ctx, key, value, ttl)
	}
	return nil
}

// Delete implements Store
func (f *FallbackStore) Delete(ctx context.Context, key string) error {
	_ = f.local.Delete(ctx, key)
	if err := f.primary.Delete(ctx, key); err != nil {
		f.degrade("delete", key, err)
	}
	return nil
}

// AcquireLease implements Store
func (f *FallbackStore) AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ok, err := f.primary.AcquireLease(ctx, key, owner, ttl)
	if err != nil {
		f.degrade("acquire lease", key, err)
		return f.local.AcquireLease(ctx, key, owner, ttl)
	}
	return ok, nil
}

// ReleaseLease implements Store
func (f *FallbackStore) ReleaseLease(ctx context.Context, key, owner string) (bool, error) {
	localReleased, _ := f.local.ReleaseLease(ctx, key, owner)
	ok, err := f.primary.ReleaseLease(ctx, key, owner)
	if err != nil {
		f.degrade("release lease", key, err)
		return localReleased, nil
	}
	return ok || localReleased, nil
}

// Close implements Store
func (f *FallbackStore) Close() error {
	return f.primary.Close()
}

var _ Store = (*FallbackStore)(nil)
