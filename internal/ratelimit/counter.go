package ratelimit // package ratelimit implements fixed-window counters and lockouts

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter is the storage primitive behind the limiter and the guard.
// Incr atomically bumps a windowed counter and reports the post-increment
// count plus the remaining window.  PutMarker stores a lockout sentinel
// with its own TTL, MarkerTTL reports whether it is still set, and Clear
// removes counters and markers after a success.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	PutMarker(ctx context.Context, key string, ttl time.Duration) error
	MarkerTTL(ctx context.Context, key string) (time.Duration, bool, error)
	Clear(ctx context.Context, keys ...string) error
}

// opTimeout bounds every round trip to the shared backend so a slow or
// dead Redis can never stall the authentication path.
const opTimeout = 2 * time.Second

// RedisCounter is the shared-store implementation.  Counts are correct
// across all server processes because INCR is atomic; the expiry is set
// only on the first increment so later hits never extend the window.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps an existing client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// Key exists without expiry (e.g. the Expire call of a racing first
		// hit failed); treat the full window as remaining.
		ttl = window
	}
	return count, ttl, nil
}

func (c *RedisCounter) PutMarker(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Set(ctx, key, "1", ttl).Err()
}

func (c *RedisCounter) MarkerTTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if ttl <= 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (c *RedisCounter) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.client.Del(ctx, keys...).Err()
}

// LocalCounter is the process-local fallback: a single mutex guarding a
// map of (count, expiry) entries.  Window rollover is lazy, checked on
// the next hit.  Under fallback, limits are per-process rather than
// global; that trade keeps the login path available when Redis is not.
type LocalCounter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	count   int64
	expires time.Time
}

// NewLocalCounter returns an empty in-process counter store.
func NewLocalCounter() *LocalCounter {
	return &LocalCounter{entries: make(map[string]*localEntry)}
}

func (c *LocalCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || now.After(e.expires) {
		e = &localEntry{expires: now.Add(window)}
		c.entries[key] = e
	}
	e.count++
	return e.count, time.Until(e.expires), nil
}

func (c *LocalCounter) PutMarker(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &localEntry{count: 1, expires: time.Now().Add(ttl)}
	return nil
}

func (c *LocalCounter) MarkerTTL(_ context.Context, key string) (time.Duration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, false, nil
	}
	left := time.Until(e.expires)
	if left <= 0 {
		delete(c.entries, key)
		return 0, false, nil
	}
	return left, true, nil
}

func (c *LocalCounter) Clear(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}
