package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/mintcrm/auth-service/internal/handler"    // import the handlers that implement business logic
	"github.com/mintcrm/auth-service/internal/middleware" // import middleware for authentication, CSRF and rate limiting
	"github.com/mintcrm/auth-service/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers every authentication route and its middleware.
// Unauthenticated operations live under /v1/auth, protected endpoints
// under /v1, and the admin-only invite endpoint carries the role and
// step-up stages on top.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	// cap resolves the per-route request limit; the master switch turns
	// every cap into zero, which the middleware treats as disabled.
	capFor := func(n int) int {
		if !a.RL.Enabled {
			return 0
		}
		return n
	}

	// Public group: no session required.  Each route carries a coarse
	// per-origin fixed-window cap; login additionally runs the per-email
	// limiter and the brute-force guard inside the handler.
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login,
		middleware.RateLimit(a.Limiter, "http", capFor(a.RL.LoginIPLimit), a.RL.Window))
	// Second step of a 2FA login: challenge token + TOTP or recovery code.
	g.POST("/login/2fa", a.LoginTwoFactor,
		middleware.RateLimit(a.Limiter, "http", capFor(a.RL.TwoFactorLimit), a.RL.Window))
	// Rotates the refresh cookie into a fresh token pair.
	g.POST("/refresh", a.Refresh,
		middleware.RateLimit(a.Limiter, "http", capFor(a.RL.GenericLimit), a.RL.Window))
	// Logout revokes the current session when one resolves and always
	// clears the cookies; it stays public so a dead session can still
	// log out cleanly.
	g.POST("/logout", a.Logout)
	// Password recovery and account bootstrap flows.  All of them are
	// driven by single-purpose tokens, so no session is involved.
	g.POST("/password/forgot", a.ForgotPassword,
		middleware.RateLimit(a.Limiter, "http", capFor(a.RL.LoginIDLimit), a.RL.Window))
	g.POST("/password/reset", a.ResetPassword,
		middleware.RateLimit(a.Limiter, "http", capFor(a.RL.LoginIDLimit), a.RL.Window))
	g.POST("/invite/accept", a.InviteAccept,
		middleware.RateLimit(a.Limiter, "http", capFor(a.RL.GenericLimit), a.RL.Window))
	g.POST("/email/verify", a.VerifyEmail,
		middleware.RateLimit(a.Limiter, "http", capFor(a.RL.GenericLimit), a.RL.Window))

	// Protected group: the Authenticate stage resolves the access token
	// (cookie or bearer) into a live user+session, and the CSRF stage
	// enforces the double-submit check for cookie-authenticated writes.
	auth := e.Group("/v1")
	auth.Use(middleware.Authenticate(a.Manager, a.Cfg.AccessCookie))
	auth.Use(middleware.CSRF(a.Cfg.CSRFCookie))
	auth.Use(middleware.RateLimit(a.Limiter, "http", capFor(a.RL.GenericLimit), a.RL.Window))

	// Identity of the current user, mostly for client bootstrapping.
	auth.GET("/me", a.Me)

	// Session management: list devices, revoke one, revoke everywhere.
	auth.GET("/sessions", a.ListSessions)
	auth.POST("/sessions/:id/revoke", a.RevokeSession)
	auth.POST("/sessions/revoke_all", a.RevokeAllSessions)

	// Two-factor lifecycle.  Setup/enable/disable act on the current
	// user; step-up refreshes the session's verification timestamp.
	auth.POST("/2fa/setup", a.TwoFactorSetup)
	auth.POST("/2fa/enable", a.TwoFactorEnable)
	auth.POST("/2fa/stepup", a.TwoFactorStepUp)
	auth.POST("/2fa/disable", a.TwoFactorDisable)
	auth.GET("/2fa/status", a.TwoFactorStatus)
	auth.POST("/2fa/recovery/regenerate", a.TwoFactorRecoveryRegenerate)
	auth.GET("/2fa/recovery/status", a.TwoFactorRecoveryStatus)

	// Admin-only: minting invites requires the admin role and a recent
	// 2FA step-up on the current session.
	admin := auth.Group("/admin")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	admin.Use(middleware.RequireAdminStepUp(a.Cfg.StepUpMaxAge))
	admin.POST("/invites", a.Invite)
}
