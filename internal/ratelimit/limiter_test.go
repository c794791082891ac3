package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return m, NewStore(NewRedisCounter(client))
}

func TestLimiterAllowsWithinLimit(t *testing.T) {
	_, store := newRedisStore(t)
	l := NewLimiter(store, "rl")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := l.Hit(ctx, "login_ip", "10.0.0.1", "", 3, time.Minute)
		require.True(t, res.Allowed, "hit %d", i)
		require.Equal(t, 3-(i+1), res.Remaining)
	}
	res := l.Hit(ctx, "login_ip", "10.0.0.1", "", 3, time.Minute)
	require.False(t, res.Allowed)
	require.Zero(t, res.Remaining)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLimiterWindowRollsOver(t *testing.T) {
	m, store := newRedisStore(t)
	l := NewLimiter(store, "rl")
	ctx := context.Background()

	require.True(t, l.Hit(ctx, "login_ip", "10.0.0.1", "", 1, time.Minute).Allowed)
	require.False(t, l.Hit(ctx, "login_ip", "10.0.0.1", "", 1, time.Minute).Allowed)

	m.FastForward(61 * time.Second)
	require.True(t, l.Hit(ctx, "login_ip", "10.0.0.1", "", 1, time.Minute).Allowed)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	_, store := newRedisStore(t)
	l := NewLimiter(store, "rl")
	ctx := context.Background()

	require.True(t, l.Hit(ctx, "login_ip", "10.0.0.1", "", 1, time.Minute).Allowed)
	require.False(t, l.Hit(ctx, "login_ip", "10.0.0.1", "", 1, time.Minute).Allowed)

	// Another origin and another scope still have budget.
	require.True(t, l.Hit(ctx, "login_ip", "10.0.0.2", "", 1, time.Minute).Allowed)
	require.True(t, l.Hit(ctx, "refresh", "10.0.0.1", "", 1, time.Minute).Allowed)

	// Same origin, different discriminator: separate counter.
	require.True(t, l.Hit(ctx, "login_email", "10.0.0.1", "a@example.com", 1, time.Minute).Allowed)
	require.True(t, l.Hit(ctx, "login_email", "10.0.0.1", "b@example.com", 1, time.Minute).Allowed)
	require.False(t, l.Hit(ctx, "login_email", "10.0.0.1", "a@example.com", 1, time.Minute).Allowed)
}

func TestLimiterFallsBackWhenRedisDies(t *testing.T) {
	m, store := newRedisStore(t)
	l := NewLimiter(store, "rl")
	ctx := context.Background()

	require.True(t, l.Hit(ctx, "s", "o", "", 2, time.Minute).Allowed)

	// Kill the shared backend mid-window: limiting keeps working on the
	// local counters instead of failing open entirely.
	m.Close()
	require.True(t, l.Hit(ctx, "s", "o", "", 2, time.Minute).Allowed)
	require.True(t, l.Hit(ctx, "s", "o", "", 2, time.Minute).Allowed)
	require.False(t, l.Hit(ctx, "s", "o", "", 2, time.Minute).Allowed)
}

func TestLimiterLocalOnlyStore(t *testing.T) {
	l := NewLimiter(NewStore(nil), "rl")
	ctx := context.Background()

	require.True(t, l.Hit(ctx, "s", "o", "", 1, time.Minute).Allowed)
	res := l.Hit(ctx, "s", "o", "", 1, time.Minute)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestHashPartNormalizesAndBounds(t *testing.T) {
	require.Equal(t, hashPart("Ada@Example.com "), hashPart("ada@example.com"))
	require.NotEqual(t, hashPart("a@example.com"), hashPart("b@example.com"))
	require.Equal(t, "-", hashPart(""))
	require.Len(t, hashPart("anything"), 16)
}
