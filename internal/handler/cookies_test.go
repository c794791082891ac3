package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/mintcrm/auth-service/internal/config"
	"github.com/mintcrm/auth-service/internal/session"
)

func testCfg(env string) config.Config {
	return config.Config{
		Env:           env,
		AccessCookie:  "access_token",
		RefreshCookie: "refresh_token",
		CSRFCookie:    "csrf_token",
	}
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		out[ck.Name] = ck
	}
	return out
}

func TestSetAuthCookies(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	now := time.Now()
	setAuthCookies(c, testCfg("dev"), session.TokenPair{
		AccessToken:   "acc",
		AccessExpiry:  now.Add(15 * time.Minute),
		RefreshToken:  "ref",
		RefreshExpiry: now.Add(24 * time.Hour),
	})

	cks := cookiesByName(rec)
	require.Len(t, cks, 3)

	access := cks["access_token"]
	require.Equal(t, "acc", access.Value)
	require.Equal(t, "/", access.Path)
	require.True(t, access.HttpOnly)
	require.False(t, access.Secure, "dev cookies stay non-secure for local http")

	// The refresh cookie never leaves the auth endpoints.
	refresh := cks["refresh_token"]
	require.Equal(t, "ref", refresh.Value)
	require.Equal(t, authPrefix, refresh.Path)
	require.True(t, refresh.HttpOnly)

	// The CSRF cookie must be readable by the client to be mirrored.
	csrf := cks["csrf_token"]
	require.NotEmpty(t, csrf.Value)
	require.False(t, csrf.HttpOnly)
}

func TestSetAuthCookiesSecureInProd(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	setAuthCookies(c, testCfg("prod"), session.TokenPair{
		AccessToken: "a", RefreshToken: "r",
		AccessExpiry: time.Now(), RefreshExpiry: time.Now(),
	})
	for name, ck := range cookiesByName(rec) {
		require.True(t, ck.Secure, "cookie %s", name)
	}
}

func TestClearAuthCookies(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	clearAuthCookies(c, testCfg("dev"))

	cks := cookiesByName(rec)
	require.Len(t, cks, 3)
	for name, ck := range cks {
		require.Empty(t, ck.Value, "cookie %s", name)
		require.Negative(t, ck.MaxAge, "cookie %s", name)
	}
	require.Equal(t, authPrefix, cks["refresh_token"].Path)
}

func TestNewCSRFTokenIsRandom(t *testing.T) {
	a, b := newCSRFToken(), newCSRFToken()
	require.Len(t, a, 32)
	require.NotEqual(t, a, b)
}
