package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/decision-letters/internal/audit"
	"github.com/jonathan/decision-letters/internal/cache"
	"github.com/jonathan/decision-letters/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey      = "decision:0123456789abcdef"
	otherTestKey = "decision:fedcba9876543210"
)

func newTestCoordinator(store cache.Store, sink audit.Sink) *Coordinator {
	return NewCoordinator(store, Options{
		WaitInterval: 20 * time.Millisecond,
		Logger:       log.New(io.Discard, "", 0),
		Audit:        sink,
	})
}

type permanentErr struct {
	reason string
}

func (e *permanentErr) Error() string       { return "rejected: " + e.reason }
func (e *permanentErr) FailureKind() string { return "safety" }
func (e *permanentErr) FailureDetail() (json.RawMessage, error) {
	return json.Marshal(map[string]string{"reason": e.reason})
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"uuid", "3f1c2d4e-5a6b-4c7d-8e9f-0a1b2c3d4e5f", true},
		{"uppercase uuid", "3F1C2D4E-5A6B-4C7D-8E9F-0A1B2C3D4E5F", true},
		{"prefix hash", "decision:0123456789abcdef", true},
		{"prefix long hash", "bulk42:9F86D081884C7D659A2FEAA0C55AD015A3BF4F1B2B0B822CD15D6C15B0F00A08", true},
		{"non-hex hash", "bulk42:Zm9vYmFyYmF6cXV4cXV1eA", false},
		{"hash with separator", "decision:0123456789abcdef-0123", false},
		{"empty", "", false},
		{"blank", "   ", false},
		{"short hash", "decision:abc", false},
		{"uppercase prefix", "Decision:0123456789abcdef", false},
		{"no prefix", ":0123456789abcdef", false},
		{"bare word", "k1", false},
		{"uuid wrong grouping", "3f1c2d4e5a6b-4c7d-8e9f-0a1b2c3d4e5f", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			var keyErr *KeyError
			assert.ErrorAs(t, err, &keyErr)
		})
	}
}

func TestExecute_InvalidKeyNeverLocks(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	c := newTestCoordinator(store, nil)

	called := false
	_, err := c.Execute(context.Background(), "k1", "decision:42", ExecuteOptions{}, func(context.Context) (json.RawMessage, error) {
		called = true
		return nil, nil
	})

	var keyErr *KeyError
	require.ErrorAs(t, err, &keyErr)
	assert.False(t, called)
	assert.Equal(t, 0, store.Len())
}

func TestExecute_MemoizesResult(t *testing.T) {
	c := newTestCoordinator(cache.NewMemoryStore(nil), nil)
	ctx := context.Background()
	var calls int32

	op := func(context.Context) (json.RawMessage, error) {
		n := atomic.AddInt32(&calls, 1)
		return json.Marshal(map[string]int32{"n": n})
	}

	first, err := c.Execute(ctx, testKey, "decision:42", ExecuteOptions{}, op)
	require.NoError(t, err)
	second, err := c.Execute(ctx, testKey, "decision:42", ExecuteOptions{}, op)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, int32(1), calls)

	record, err := c.Lookup(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusCompleted, record.Status)
}

func TestExecute_ExactlyOnceUnderConcurrency(t *testing.T) {
	c := newTestCoordinator(cache.NewMemoryStore(nil), nil)
	ctx := context.Background()
	var calls int32

	op := func(context.Context) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return json.RawMessage(`{"letter":"final"}`), nil
	}

	const callers = 20
	var wg sync.WaitGroup
	results := make([]json.RawMessage, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Execute(ctx, testKey, "", ExecuteOptions{}, op)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls)
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			var conflict *ConflictError
			require.ErrorAs(t, errs[i], &conflict)
			assert.Equal(t, ReasonInProgress, conflict.Reason)
			continue
		}
		assert.JSONEq(t, `{"letter":"final"}`, string(results[i]))
	}
}

func TestExecute_ResourceMutualExclusion(t *testing.T) {
	c := newTestCoordinator(cache.NewMemoryStore(nil), nil)
	ctx := context.Background()

	var active, maxActive int32
	op := func(context.Context) (json.RawMessage, error) {
		now := atomic.AddInt32(&active, 1)
		for {
			prev := atomic.LoadInt32(&maxActive)
			if now <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, now) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return json.RawMessage(`true`), nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, key := range []string{testKey, otherTestKey} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			_, errs[i] = c.Execute(ctx, key, "decision:42", ExecuteOptions{}, op)
		}(i, key)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	for _, err := range errs {
		if err != nil {
			var conflict *ConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, ReasonResourceBusy, conflict.Reason)
			assert.Equal(t, "decision:42", conflict.Resource)
		}
	}
}

func TestExecute_ResourceBusyReleasesKeyLock(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	c := newTestCoordinator(store, nil)
	ctx := context.Background()

	ok, err := store.AcquireLease(ctx, resourcePrefix+"decision:42", "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	var entries []types.AuditEntry
	c.opts.Audit = audit.FuncSink(func(_ context.Context, e types.AuditEntry) error {
		entries = append(entries, e)
		return nil
	})

	_, err = c.Execute(ctx, testKey, "decision:42", ExecuteOptions{}, func(context.Context) (json.RawMessage, error) {
		t.Fatal("operation must not run while the resource is held")
		return nil, nil
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonResourceBusy, conflict.Reason)

	_, held, _ := store.Get(ctx, keyLockPrefix+testKey)
	assert.False(t, held, "key lock must be released when the resource is busy")

	require.Len(t, entries, 1)
	assert.Equal(t, types.ActionIdempotencyContention, entries[0].Action)
	assert.Equal(t, "resource_busy", entries[0].Metadata["reason"])
}

func TestExecute_InProgressConflictCarriesPrevious(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	c := newTestCoordinator(store, nil)
	ctx := context.Background()

	ok, _ := store.AcquireLease(ctx, keyLockPrefix+testKey, "holder", time.Minute)
	require.True(t, ok)
	require.NoError(t, c.save(ctx, &Record{Key: testKey, Status: StatusInProgress, Owner: "holder"}, time.Minute))

	_, err := c.Execute(ctx, testKey, "", ExecuteOptions{}, func(context.Context) (json.RawMessage, error) {
		t.Fatal("operation must not run while the key is held")
		return nil, nil
	})

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonInProgress, conflict.Reason)
	require.NotNil(t, conflict.Previous)
	assert.Equal(t, StatusInProgress, conflict.Previous.Status)
}

func TestExecute_WaitObservesCompletion(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	c := newTestCoordinator(store, nil)
	c.opts.WaitInterval = 50 * time.Millisecond
	ctx := context.Background()

	ok, _ := store.AcquireLease(ctx, keyLockPrefix+testKey, "holder", time.Minute)
	require.True(t, ok)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = c.save(ctx, &Record{Key: testKey, Status: StatusCompleted, Result: json.RawMessage(`"done"`)}, time.Minute)
	}()

	result, err := c.Execute(ctx, testKey, "", ExecuteOptions{}, func(context.Context) (json.RawMessage, error) {
		t.Fatal("operation must not run")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(result))
}

func TestExecute_ExpiredLockIsReacquired(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := start
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := cache.NewMemoryStore(clock)
	c := newTestCoordinator(store, nil)
	ctx := context.Background()

	ok, _ := store.AcquireLease(ctx, keyLockPrefix+testKey, "crashed", time.Second)
	require.True(t, ok)
	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	result, err := c.Execute(ctx, testKey, "", ExecuteOptions{}, func(context.Context) (json.RawMessage, error) {
		return json.RawMessage(`1`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1", string(result))
}

func TestExecute_LongLockKeepsRecordInProgress(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := start
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := cache.NewMemoryStore(clock)
	c := newTestCoordinator(store, nil)
	ctx := context.Background()

	_, err := c.Execute(ctx, testKey, "bulk:7", ExecuteOptions{LockTTL: 30 * time.Minute}, func(ctx context.Context) (json.RawMessage, error) {
		mu.Lock()
		now = now.Add(DefaultInProgressTTL + DefaultLockTTL)
		mu.Unlock()

		record, err := c.Lookup(ctx, testKey)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, StatusInProgress, record.Status)

		_, err = c.Execute(ctx, testKey, "bulk:7", ExecuteOptions{}, func(context.Context) (json.RawMessage, error) {
			t.Error("second caller ran while the first still held the key")
			return nil, nil
		})
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, ReasonInProgress, conflict.Reason)
		return json.RawMessage(`"done"`), nil
	})
	require.NoError(t, err)
}

func TestExecute_PermanentFailureIsReplayed(t *testing.T) {
	c := newTestCoordinator(cache.NewMemoryStore(nil), nil)
	ctx := context.Background()
	var calls int32

	op := func(context.Context) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &permanentErr{reason: "banned phrase"}
	}

	_, err := c.Execute(ctx, testKey, "decision:42", ExecuteOptions{}, op)
	var perm *permanentErr
	require.ErrorAs(t, err, &perm, "the original error propagates on the first call")

	_, err = c.Execute(ctx, testKey, "decision:42", ExecuteOptions{}, op)
	var replayed *ReplayedError
	require.ErrorAs(t, err, &replayed)
	assert.Equal(t, "safety", replayed.Failure.Kind)
	assert.True(t, replayed.Failure.Permanent)
	assert.JSONEq(t, `{"reason":"banned phrase"}`, string(replayed.Failure.Detail))
	assert.Equal(t, int32(1), calls)
}

func TestExecute_TransientFailureReExecutes(t *testing.T) {
	c := newTestCoordinator(cache.NewMemoryStore(nil), nil)
	ctx := context.Background()
	var calls int32
	boom := errors.New("provider unavailable")

	op := func(context.Context) (json.RawMessage, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, boom
		}
		return json.RawMessage(`"ok"`), nil
	}

	_, err := c.Execute(ctx, testKey, "", ExecuteOptions{}, op)
	require.ErrorIs(t, err, boom)

	record, _ := c.Lookup(ctx, testKey)
	require.NotNil(t, record)
	assert.Equal(t, StatusFailed, record.Status)
	assert.False(t, record.Replayable())

	result, err := c.Execute(ctx, testKey, "", ExecuteOptions{}, op)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(result))
	assert.Equal(t, int32(2), calls)
}

func TestExecute_LocksReleasedAfterFailure(t *testing.T) {
	store := cache.NewMemoryStore(nil)
	c := newTestCoordinator(store, nil)
	ctx := context.Background()

	_, _ = c.Execute(ctx, testKey, "decision:42", ExecuteOptions{}, func(context.Context) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})

	_, held, _ := store.Get(ctx, keyLockPrefix+testKey)
	assert.False(t, held)
	_, held, _ = store.Get(ctx, resourcePrefix+"decision:42")
	assert.False(t, held)
}

func TestExecute_Forget(t *testing.T) {
	c := newTestCoordinator(cache.NewMemoryStore(nil), nil)
	ctx := context.Background()
	var calls int32
	op := func(context.Context) (json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return json.RawMessage(`1`), nil
	}

	_, err := c.Execute(ctx, testKey, "", ExecuteOptions{}, op)
	require.NoError(t, err)
	require.NoError(t, c.Forget(ctx, testKey))
	_, err = c.Execute(ctx, testKey, "", ExecuteOptions{}, op)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestRun_Typed(t *testing.T) {
	c := newTestCoordinator(cache.NewMemoryStore(nil), nil)
	type result struct {
		Letter string `json:"letter"`
	}

	got, err := Run(context.Background(), c, testKey, "", ExecuteOptions{}, func(context.Context) (result, error) {
		return result{Letter: "hello"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Letter)

	again, err := Run(context.Background(), c, testKey, "", ExecuteOptions{}, func(context.Context) (result, error) {
		return result{Letter: "second"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Letter)
}

func TestErrors(t *testing.T) {
	assert.Contains(t, (&ConflictError{Key: testKey, Reason: ReasonInProgress}).Error(), "already in progress")
	assert.Contains(t, (&ConflictError{Resource: "decision:42", Reason: ReasonResourceBusy}).Error(), "busy")
	cause := errors.New("dial tcp")
	assert.ErrorIs(t, &StoreError{Message: "read", Cause: cause}, cause)
	assert.Contains(t, (&ReplayedError{Key: testKey, Failure: Failure{Kind: "safety", Message: "x"}}).Error(), "safety")
}

func TestDeriveKey(t *testing.T) {
	key := DeriveKey("Decision", "0123456789abcdef0123")
	assert.Equal(t, "decision:0123456789abcdef0123", key)
	assert.NoError(t, ValidateKey(key))
}
