package config // package config loads application configuration from environment variables

import (
	"log"      // log is used to report configuration errors and halt execution
	"os"       // os provides access to environment variables
	"strconv"  // strconv converts strings to other types
	"time"     // time parses duration-valued variables
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints and durations
// for lifetimes and costs.
type Config struct {
	Env               string        // application environment (e.g. "dev", "prod")
	Port              string        // HTTP port to listen on
	DBUser            string        // database username
	DBPass            string        // database password (optional)
	DBHost            string        // database host address
	DBPort            string        // database port number
	DBName            string        // database name
	JWTSecret         string        // secret used to sign every token type
	AccessTTLMin      int           // access token time‑to‑live in minutes
	RefreshTTLDays    int           // refresh token time‑to‑live in days
	ChallengeTTLMin   int           // 2FA challenge token time‑to‑live in minutes
	ResetTTLMin       int           // password reset token time‑to‑live in minutes
	InviteTTLHours    int           // invite token time‑to‑live in hours
	StepUpMaxAge      time.Duration // how recent a 2FA step-up must be for admin routes
	HeartbeatInterval time.Duration // minimum gap between session last_seen_at writes
	BcryptCost        int           // bcrypt cost for password hashing
	TOTPIssuer        string        // issuer label shown in authenticator apps
	TOTPSkew          int           // accepted steps on either side of the current one
	AccessCookie      string        // name of the access token cookie
	RefreshCookie     string        // name of the refresh token cookie
	CSRFCookie        string        // name of the non-httpOnly CSRF cookie
	CookieDomain      string        // cookie domain (empty for host-only)
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Tunables fall back
// to sensible defaults so a dev environment only needs the required set.
func Load() Config {
	return Config{
		Env:               must("APP_ENV"),             // environment (dev/test/prod)
		Port:              must("APP_PORT"),            // port to bind the HTTP server
		DBUser:            must("DB_USER"),             // database user
		DBPass:            os.Getenv("DB_PASS"),        // database password (empty allowed)
		DBHost:            must("DB_HOST"),             // database host
		DBPort:            must("DB_PORT"),             // database port
		DBName:            must("DB_NAME"),             // database name
		JWTSecret:         must("JWT_SECRET"),          // shared signing secret
		AccessTTLMin:      envInt("ACCESS_TOKEN_TTL_MIN", 15),    // TTL for access tokens in minutes
		RefreshTTLDays:    envInt("REFRESH_TOKEN_TTL_DAYS", 30),  // TTL for refresh tokens in days
		ChallengeTTLMin:   envInt("CHALLENGE_TOKEN_TTL_MIN", 5),  // TTL for 2FA challenge tokens
		ResetTTLMin:       envInt("RESET_TOKEN_TTL_MIN", 30),     // TTL for password reset tokens
		InviteTTLHours:    envInt("INVITE_TOKEN_TTL_HOURS", 72),  // TTL for invite tokens
		StepUpMaxAge:      envDur("STEP_UP_MAX_AGE", 12*time.Hour),      // max age of a 2FA step-up
		HeartbeatInterval: envDur("HEARTBEAT_INTERVAL", 5*time.Minute),  // last_seen_at write throttle
		BcryptCost:        envInt("BCRYPT_COST", 12),   // bcrypt cost factor
		TOTPIssuer:        envStr("TOTP_ISSUER", "MintCRM"),      // authenticator issuer label
		TOTPSkew:          envInt("TOTP_SKEW", 1),      // clock skew tolerance in steps
		AccessCookie:      envStr("ACCESS_COOKIE", "access_token"),
		RefreshCookie:     envStr("REFRESH_COOKIE", "refresh_token"),
		CSRFCookie:        envStr("CSRF_COOKIE", "csrf_token"),
		CookieDomain:      os.Getenv("COOKIE_DOMAIN"), // empty means host-only cookies
	}
}

// AccessTTL returns the access token lifetime as a duration.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLMin) * time.Minute }

// RefreshTTL returns the refresh token lifetime as a duration.
func (c Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTTLDays) * 24 * time.Hour }

// ChallengeTTL returns the 2FA challenge token lifetime as a duration.
func (c Config) ChallengeTTL() time.Duration { return time.Duration(c.ChallengeTTLMin) * time.Minute }

// ResetTTL returns the password reset token lifetime as a duration.
func (c Config) ResetTTL() time.Duration { return time.Duration(c.ResetTTLMin) * time.Minute }

// InviteTTL returns the invite token lifetime as a duration.
func (c Config) InviteTTL() time.Duration { return time.Duration(c.InviteTTLHours) * time.Hour }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
