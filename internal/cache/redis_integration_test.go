//go:build integration

package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	store, err := NewRedisStore(ctx, RedisConfig{Addr: addr, Prefix: "test:" + uuid.NewString() + ":"})
	if err != nil {
		t.Skipf("Skipping integration test: redis not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(value))

	require.NoError(t, store.Delete(ctx, "k"))
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Lease(t *testing.T) {
	store := setupRedis(t)
	ctx := context.Background()

	ok, err := store.AcquireLease(ctx, "lock", "alice", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireLease(ctx, "lock", "bob", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := store.ReleaseLease(ctx, "lock", "bob")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = store.ReleaseLease(ctx, "lock", "alice")
	require.NoError(t, err)
	assert.True(t, released)
}
