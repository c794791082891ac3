package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequireAdminStepUp gates sensitive routes behind a recent 2FA
// verification on the current session.  Users without 2FA enabled pass
// through unchanged — step-up only binds accounts that opted in.  For
// 2FA users the session must carry an mfa_verified_at no older than
// maxAge; otherwise the response is 428 so clients know to prompt for a
// code rather than a full re-login.
func RequireAdminStepUp(maxAge time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, okU := CurrentUser(c)
			s, okS := CurrentSession(c)
			if !okU || !okS {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !u.TOTPEnabled {
				return next(c)
			}
			if s.MFAVerifiedAt == nil || time.Since(*s.MFAVerifiedAt) > maxAge {
				return c.JSON(http.StatusPreconditionRequired, echo.Map{"error": "step_up_required"})
			}
			return next(c)
		}
	}
}
