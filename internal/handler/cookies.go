package handler

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mintcrm/auth-service/internal/config"
	"github.com/mintcrm/auth-service/internal/session"
)

// authPrefix is the path the refresh cookie is restricted to, so the
// long-lived credential only ever travels to the auth endpoints.
const authPrefix = "/v1/auth"

// setAuthCookies writes the cookie triple for a fresh token pair: the
// httpOnly access cookie at /, the httpOnly refresh cookie restricted to
// the auth prefix, and a non-httpOnly CSRF cookie the client mirrors
// into a header for the double-submit check.
func setAuthCookies(c echo.Context, cfg config.Config, pair session.TokenPair) {
	secure := cfg.Env == "prod" || cfg.Env == "staging"
	c.SetCookie(&http.Cookie{
		Name:     cfg.AccessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Domain:   cfg.CookieDomain, // may be empty for host-only
		Expires:  pair.AccessExpiry,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
	c.SetCookie(&http.Cookie{
		Name:     cfg.RefreshCookie,
		Value:    pair.RefreshToken,
		Path:     authPrefix,
		Domain:   cfg.CookieDomain,
		Expires:  pair.RefreshExpiry,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
	c.SetCookie(&http.Cookie{
		Name:     cfg.CSRFCookie,
		Value:    newCSRFToken(),
		Path:     "/",
		Domain:   cfg.CookieDomain,
		Expires:  pair.RefreshExpiry,
		HttpOnly: false, // the client must read it to mirror it
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// clearAuthCookies expires the whole triple. Login and refresh failures
// always clear stale cookies so a doomed cookie cannot cause retry loops.
func clearAuthCookies(c echo.Context, cfg config.Config) {
	secure := cfg.Env == "prod" || cfg.Env == "staging"
	for _, ck := range []struct {
		name, path string
		httpOnly   bool
	}{
		{cfg.AccessCookie, "/", true},
		{cfg.RefreshCookie, authPrefix, true},
		{cfg.CSRFCookie, "/", false},
	} {
		c.SetCookie(&http.Cookie{
			Name:     ck.name,
			Value:    "",
			Path:     ck.path,
			Domain:   cfg.CookieDomain,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: ck.httpOnly,
			SameSite: http.SameSiteLaxMode,
			Secure:   secure,
		})
	}
}

func newCSRFToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
