package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrLocked is returned by Guard.Enforce while a lockout marker is set.
var ErrLocked = errors.New("identity locked out")

// GuardConfig tunes the brute-force guard.  Lockout is deliberately
// independent of FailureWindow: a lockout triggered at the end of a
// window still lasts its full duration.
type GuardConfig struct {
	MaxFailures   int
	FailureWindow time.Duration
	Lockout       time.Duration
}

// Guard layers targeted lockouts on top of the limiter primitives for
// credential-guessing endpoints.  It tracks failures per (identity,
// origin) pair so an attacker rotating addresses does not lock the
// victim out globally, and a single address cannot burn many accounts
// unnoticed.
type Guard struct {
	store *Store
	cfg   GuardConfig
}

// NewGuard builds a Guard over the shared/fallback store.
func NewGuard(store *Store, cfg GuardConfig) *Guard {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 1
	}
	return &Guard{store: store, cfg: cfg}
}

// Enforce fails fast with ErrLocked when a lockout marker exists for the
// pair, returning the marker's remaining TTL as the retry-after hint.
func (g *Guard) Enforce(ctx context.Context, scope, identity, origin string) (time.Duration, error) {
	ttl, locked, err := g.store.MarkerTTL(ctx, g.lockKey(scope, identity, origin))
	if err != nil {
		return 0, nil
	}
	if locked {
		return ttl, ErrLocked
	}
	return 0, nil
}

// RecordFailure counts one failed attempt and sets the lockout marker
// once the failure count reaches the threshold within its window.  It
// reports whether this call triggered the lockout.
func (g *Guard) RecordFailure(ctx context.Context, scope, identity, origin string) bool {
	count, _, err := g.store.Incr(ctx, g.failKey(scope, identity, origin), g.cfg.FailureWindow)
	if err != nil {
		return false
	}
	if count >= int64(g.cfg.MaxFailures) {
		_ = g.store.PutMarker(ctx, g.lockKey(scope, identity, origin), g.cfg.Lockout)
		return true
	}
	return false
}

// RecordSuccess clears the failure counter and any lockout for the pair.
// Called after a fully successful authentication so legitimate users who
// fat-fingered a few attempts start clean.
func (g *Guard) RecordSuccess(ctx context.Context, scope, identity, origin string) {
	_ = g.store.Clear(ctx,
		g.failKey(scope, identity, origin),
		g.lockKey(scope, identity, origin))
}

func (g *Guard) failKey(scope, identity, origin string) string {
	return strings.Join([]string{"bf", scope, hashPart(identity), hashPart(origin)}, ":")
}

func (g *Guard) lockKey(scope, identity, origin string) string {
	return strings.Join([]string{"lock", scope, hashPart(identity), hashPart(origin)}, ":")
}
