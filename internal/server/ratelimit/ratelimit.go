// Package ratelimit provides per-client token bucket rate limiting.
package ratelimit

import (
	"slices"
	"sync"
	"time"
)

// bucket refills continuously at rate tokens per second up to capacity
type bucket struct {
	capacity   float64
	rate       float64
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
	}
	b.lastRefill = now
}

// take consumes one token if available and reports the bucket state
func (b *bucket) take(now time.Time) (allowed bool, remaining int, reset time.Time) {
	b.refill(now)
	b.lastAccess = now
	if b.tokens >= 1 {
		b.tokens--
		allowed = true
	}
	reset = now
	if missing := b.capacity - b.tokens; missing > 0 {
		reset = now.Add(time.Duration(missing / b.rate * float64(time.Second)))
	}
	return allowed, int(b.tokens), reset
}

// Info describes the limit applied to one request
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter tracks one bucket per client, route and method
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  Config
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the limiter's time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a Limiter. A nil config disables limiting.
func NewLimiter(config *Config, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if config != nil {
		l.config = *config
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.config.Enabled && l.config.CleanupInterval > 0 {
		go l.cleanupLoop(l.config.CleanupInterval)
	}
	return l
}

// Allow consumes a token for the client on the given route
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || slices.Contains(l.config.Allowlist, clientID) {
		return true, Info{Allowed: true}
	}
	if slices.Contains(l.config.Denylist, clientID) {
		return false, Info{}
	}

	endpoint := MatchEndpoint(path, method, l.config.Endpoints)
	if endpoint == nil {
		endpoint = &EndpointConfig{Limit: l.config.DefaultLimit, Window: l.config.DefaultWindow}
	}
	if endpoint.Limit <= 0 || endpoint.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	key := clientID + " " + method + " " + path
	if endpoint.Path != "" {
		key = clientID + " " + method + " " + endpoint.Path
	}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		capacity := endpoint.Burst
		if capacity <= 0 {
			capacity = endpoint.Limit
		}
		b = &bucket{
			capacity:   float64(capacity),
			rate:       float64(endpoint.Limit) / endpoint.Window.Seconds(),
			tokens:     float64(capacity),
			lastRefill: now,
		}
		l.buckets[key] = b
	}
	allowed, remaining, reset := b.take(now)
	l.mu.Unlock()

	info := Info{Allowed: allowed, Limit: endpoint.Limit, Remaining: remaining, ResetTime: reset}
	if !allowed {
		info.RetryAfter = time.Duration(float64(time.Second) / b.rate)
	}
	return allowed, info
}

// Sweep drops buckets idle for longer than the configured idle TTL
func (l *Limiter) Sweep() int {
	ttl := l.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.stop:
			return
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
