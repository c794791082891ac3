package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Result is the outcome of a limiter hit.  RetryAfter is only meaningful
// when Allowed is false.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter applies fixed-window caps on top of a Store.  Keys are always
// scope + hashed origin + hashed discriminator; raw emails and addresses
// never reach the counter backend.
type Limiter struct {
	store  *Store
	prefix string
}

// NewLimiter builds a Limiter with the given key prefix.
func NewLimiter(store *Store, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{store: store, prefix: prefix}
}

// Hit counts one event against (scope, origin, discriminator) and reports
// whether it stays within limit for the window.  Errors from the backend
// never surface: the Store already degraded to local counters.
func (l *Limiter) Hit(ctx context.Context, scope, origin, discriminator string, limit int, window time.Duration) Result {
	key := l.key(scope, origin, discriminator)
	count, ttl, err := l.store.Incr(ctx, key, window)
	if err != nil {
		// Local fallback cannot fail today, but stay fail-open for the
		// throughput cap: denying every request on a counter bug would be
		// a self-inflicted outage.
		return Result{Allowed: true, Remaining: limit}
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if count > int64(limit) {
		return Result{Allowed: false, Remaining: 0, RetryAfter: ttl}
	}
	return Result{Allowed: true, Remaining: remaining}
}

func (l *Limiter) key(scope, origin, discriminator string) string {
	parts := []string{l.prefix, scope, hashPart(origin)}
	if discriminator != "" {
		parts = append(parts, hashPart(discriminator))
	}
	return strings.Join(parts, ":")
}

// hashPart bounds key cardinality and keeps PII (emails, addresses) out
// of the counter backend.  16 hex chars of SHA-256 is plenty for a
// rate-limit key space.
func hashPart(v string) string {
	if v == "" {
		return "-"
	}
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(v))))
	return hex.EncodeToString(sum[:8])
}
