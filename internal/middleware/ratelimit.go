package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mintcrm/auth-service/internal/ratelimit"
)

// RateLimit returns a per-route fixed-window cap keyed by the client
// origin.  It is the coarse throughput layer; the brute-force guard in
// the login handlers adds the targeted lockout on top.
// A non-positive limit disables the middleware, which is how the
// master switch in the limiter config is expressed per route.
func RateLimit(l *ratelimit.Limiter, scope string, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if limit <= 0 {
				return next(c)
			}
			route := c.Request().Method + " " + c.Path()
			res := l.Hit(c.Request().Context(), scope, ClientOrigin(c), route, limit, window)

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				return TooMany(c, res.RetryAfter)
			}
			return next(c)
		}
	}
}

// TooMany writes the shared 429 response with a machine-readable
// Retry-After when the remaining wait is known.
func TooMany(c echo.Context, retryAfter time.Duration) error {
	secs := int(retryAfter / time.Second)
	if retryAfter > 0 && secs == 0 {
		secs = 1
	}
	if secs > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	}
	return c.JSON(http.StatusTooManyRequests, echo.Map{
		"error":       "too_many_requests",
		"retry_after": secs,
	})
}

// ClientOrigin derives the client address for limiter keys and session
// metadata: the first forwarded-for hop when a proxy added one, the
// transport peer address otherwise.  Echo's RealIP implements exactly
// that preference order.
func ClientOrigin(c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return ip
}
