package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitDefaults(t *testing.T) {
	rl := LoadRateLimitConfig()
	require.True(t, rl.Enabled)
	require.Equal(t, 30, rl.LoginIPLimit)
	require.Equal(t, 10, rl.LoginIDLimit)
	require.Equal(t, time.Minute, rl.Window)
	require.Equal(t, 8, rl.MaxFailures)
	require.Equal(t, 30*time.Minute, rl.Lockout)
	require.Equal(t, "rl", rl.Prefix)
}

func TestRateLimitEnvOverridesAndFloors(t *testing.T) {
	t.Setenv("RATE_LIMIT_LOGIN_IP", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("LOCKOUT_MAX_FAILURES", "0")
	t.Setenv("LOCKOUT_DURATION", "-5m")
	t.Setenv("LOCKOUT_FAILURE_WINDOW", "10m")

	rl := LoadRateLimitConfig()
	require.Equal(t, 5, rl.LoginIPLimit)
	require.Equal(t, 30*time.Second, rl.Window)
	// Floors: zero failures and a negative lockout cannot disable the guard.
	require.Equal(t, 1, rl.MaxFailures)
	require.Equal(t, 10*time.Minute, rl.Lockout)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_INT", "not-a-number")
	require.Equal(t, 7, envInt("X_INT", 7))

	t.Setenv("X_DUR", "90s")
	require.Equal(t, 90*time.Second, envDur("X_DUR", time.Minute))

	t.Setenv("X_BOOL", "off")
	require.False(t, envBool("X_BOOL", true))
	require.True(t, envBool("X_BOOL_UNSET", true))

	require.Equal(t, "fallback", envStr("X_STR_UNSET", "fallback"))
}

func TestTTLHelpers(t *testing.T) {
	c := Config{AccessTTLMin: 15, RefreshTTLDays: 30, ChallengeTTLMin: 5, ResetTTLMin: 30, InviteTTLHours: 72}
	require.Equal(t, 15*time.Minute, c.AccessTTL())
	require.Equal(t, 30*24*time.Hour, c.RefreshTTL())
	require.Equal(t, 5*time.Minute, c.ChallengeTTL())
	require.Equal(t, 30*time.Minute, c.ResetTTL())
	require.Equal(t, 72*time.Hour, c.InviteTTL())
}
