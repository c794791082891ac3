package middleware // middleware provides shared request processing for handlers

import (
	"net/http"               // HTTP status codes for responses
	"strings"               // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/mintcrm/auth-service/internal/model"
	"github.com/mintcrm/auth-service/internal/session"
)

// Context keys set by Authenticate and read by the later pipeline stages
// and the handlers.
const (
	CtxUser    = "auth_user"
	CtxSession = "auth_session"
)

// Authenticate returns the first stage of the auth pipeline: it resolves
// the access token (cookie first, Authorization bearer as API-client
// fallback) through the session manager and stores the resolved user and
// session in the request context.  Everything downstream — role checks,
// step-up checks, handlers — reads those two values; no later stage
// re-decodes tokens or re-checks revocation.  Any failure is a 401.
func Authenticate(mgr *session.Manager, accessCookie string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			// Prefer the httpOnly cookie set at login.
			if ck, err := c.Cookie(accessCookie); err == nil && ck.Value != "" {
				raw = ck.Value
			}
			// Non-browser clients send the same token as a bearer.
			if raw == "" {
				auth := c.Request().Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					raw = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			u, s, err := mgr.AuthorizeAccess(c.Request().Context(), raw)
			if err != nil {
				// Invalid token and revoked session respond identically;
				// both mean "re-authenticate".
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired session"})
			}
			c.Set(CtxUser, u)
			c.Set(CtxSession, s)
			return next(c)
		}
	}
}

// CurrentUser returns the authenticated user placed in the context by
// Authenticate.  The boolean is false when the pipeline did not run.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(CtxUser).(model.User)
	return u, ok
}

// CurrentSession returns the resolved session from the context.
func CurrentSession(c echo.Context) (model.Session, bool) {
	s, ok := c.Get(CtxSession).(model.Session)
	return s, ok
}

// RequireRole returns the role stage of the pipeline.  It is fail-closed:
// a missing user, missing role, or unknown role always denies with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant‑time lookups.
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok || !allowed[u.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
