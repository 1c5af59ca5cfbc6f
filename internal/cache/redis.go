package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared Store backed by Redis
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// acquireScript sets the lease when absent or already held by the caller, in one step
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
return 0
`)

// releaseScript deletes the lease only when held by the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisStore creates a RedisStore and verifies the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, &Error{Message: "redis addr is required"}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &Error{Message: "failed to ping redis", Cause: err}
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Message: "get " + key, Cause: err}
	}
	return value, true, nil
}

// Set implements Store
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return &Error{Message: "set " + key, Cause: err}
	}
	return nil
}

// Delete implements Store
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return &Error{Message: "delete " + key, Cause: err}
	}
	return nil
}

// AcquireLease implements Store
func (r *RedisStore) AcquireLease(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	ttlMillis := ttl.Milliseconds()
	if ttlMillis <= 0 {
		ttlMillis = 1000
	}
	n, err := acquireScript.Run(ctx, r.client, []string{r.key(key)}, owner, ttlMillis).Int64()
	if err != nil {
		return false, &Error{Message: "acquire lease " + key, Cause: err}
	}
	return n == 1, nil
}

// ReleaseLease implements Store
func (r *RedisStore) ReleaseLease(ctx context.Context, key, owner string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client, []string{r.key(key)}, owner).Int64()
	if err != nil {
		return false, &Error{Message: "release lease " + key, Cause: err}
	}
	return n == 1, nil
}

// Close implements Store
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
