package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T, max int) (*Guard, *Store) {
	t.Helper()
	store := NewStore(nil)
	return NewGuard(store, GuardConfig{
		MaxFailures:   max,
		FailureWindow: time.Minute,
		Lockout:       30 * time.Minute,
	}), store
}

func TestGuardLocksAfterThreshold(t *testing.T) {
	g, _ := newGuard(t, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.False(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))
		_, err := g.Enforce(ctx, "login", "ada@example.com", "10.0.0.1")
		require.NoError(t, err)
	}

	// Third failure trips the lockout.
	require.True(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))
	retry, err := g.Enforce(ctx, "login", "ada@example.com", "10.0.0.1")
	require.ErrorIs(t, err, ErrLocked)
	require.Greater(t, retry, time.Duration(0))
}

func TestGuardLockoutOutlivesFailureWindow(t *testing.T) {
	m, store := newRedisStore(t)
	g := NewGuard(store, GuardConfig{
		MaxFailures:   2,
		FailureWindow: time.Minute,
		Lockout:       30 * time.Minute,
	})
	ctx := context.Background()

	require.False(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))
	require.True(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))

	// Well past the failure window: the counter has expired but the
	// lockout marker keeps its own clock.
	m.FastForward(2 * time.Minute)
	retry, err := g.Enforce(ctx, "login", "ada@example.com", "10.0.0.1")
	require.ErrorIs(t, err, ErrLocked)
	require.Greater(t, retry, 25*time.Minute)

	// The lockout lifts only once its own duration elapses.
	m.FastForward(29 * time.Minute)
	_, err = g.Enforce(ctx, "login", "ada@example.com", "10.0.0.1")
	require.NoError(t, err)
}

func TestGuardPairsAreIndependent(t *testing.T) {
	g, _ := newGuard(t, 1)
	ctx := context.Background()

	require.True(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))
	_, err := g.Enforce(ctx, "login", "ada@example.com", "10.0.0.1")
	require.ErrorIs(t, err, ErrLocked)

	// Same identity from another origin is untouched, and so is another
	// identity from the locked origin.
	_, err = g.Enforce(ctx, "login", "ada@example.com", "10.0.0.2")
	require.NoError(t, err)
	_, err = g.Enforce(ctx, "login", "grace@example.com", "10.0.0.1")
	require.NoError(t, err)

	// Different scope with the same pair is separate too.
	_, err = g.Enforce(ctx, "2fa", "ada@example.com", "10.0.0.1")
	require.NoError(t, err)
}

func TestGuardSuccessClearsState(t *testing.T) {
	g, _ := newGuard(t, 2)
	ctx := context.Background()

	require.False(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))
	g.RecordSuccess(ctx, "login", "ada@example.com", "10.0.0.1")

	// The counter restarted: one more failure does not lock.
	require.False(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))

	// Clearing also lifts an existing lockout.
	require.True(t, g.RecordFailure(ctx, "login", "ada@example.com", "10.0.0.1"))
	g.RecordSuccess(ctx, "login", "ada@example.com", "10.0.0.1")
	_, err := g.Enforce(ctx, "login", "ada@example.com", "10.0.0.1")
	require.NoError(t, err)
}

func TestLocalCounterWindowExpiry(t *testing.T) {
	c := NewLocalCounter()
	ctx := context.Background()

	n, ttl, err := c.Incr(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Greater(t, ttl, time.Duration(0))

	n, _, err = c.Incr(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	time.Sleep(60 * time.Millisecond)
	n, _, err = c.Incr(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "expired window must restart the count")
}

func TestLocalCounterMarker(t *testing.T) {
	c := NewLocalCounter()
	ctx := context.Background()

	require.NoError(t, c.PutMarker(ctx, "lock", 50*time.Millisecond))
	_, ok, err := c.MarkerTTL(ctx, "lock")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok, err = c.MarkerTTL(ctx, "lock")
	require.NoError(t, err)
	require.False(t, ok)
}
