package config

import "time"

// RateLimitConfig carries the fixed-window limiter caps and the
// brute-force lockout knobs.  The lockout duration is independent of
// the failure window on purpose: a lockout set near the end of a
// window must outlive the window that triggered it.
type RateLimitConfig struct {
	Enabled        bool          // master switch for the per-route limiter
	LoginIPLimit   int           // login attempts per origin within Window
	LoginIDLimit   int           // login attempts per email within Window
	TwoFactorLimit int           // 2FA code attempts per identity within Window
	GenericLimit   int           // default per-route request cap within Window
	Window         time.Duration // fixed counter window
	MaxFailures    int           // wrong-credential failures before lockout
	FailureWindow  time.Duration // window the failure counter lives in
	Lockout        time.Duration // how long a triggered lockout lasts
	Prefix         string        // key prefix in the shared backend
}

// LoadRateLimitConfig reads limiter settings from the environment and
// applies floor values so a misconfigured deployment cannot disable
// the guard by accident.
func LoadRateLimitConfig() RateLimitConfig {
	def := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		LoginIPLimit:   envInt("RATE_LIMIT_LOGIN_IP", 30),
		LoginIDLimit:   envInt("RATE_LIMIT_LOGIN_EMAIL", 10),
		TwoFactorLimit: envInt("RATE_LIMIT_2FA", 10),
		GenericLimit:   envInt("RATE_LIMIT_GENERIC", 60),
		Window:         envDur("RATE_LIMIT_WINDOW", time.Minute),
		MaxFailures:    envInt("LOCKOUT_MAX_FAILURES", 8),
		FailureWindow:  envDur("LOCKOUT_FAILURE_WINDOW", 15*time.Minute),
		Lockout:        envDur("LOCKOUT_DURATION", 30*time.Minute),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if def.Window <= 0 {
		def.Window = time.Minute
	}
	if def.MaxFailures < 1 {
		def.MaxFailures = 1
	}
	if def.FailureWindow <= 0 {
		def.FailureWindow = 15 * time.Minute
	}
	if def.Lockout <= 0 {
		def.Lockout = def.FailureWindow
	}
	return def
}
