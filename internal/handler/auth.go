package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mintcrm/auth-service/internal/config"     // app configuration
	"github.com/mintcrm/auth-service/internal/middleware" // client origin + shared responses
	"github.com/mintcrm/auth-service/internal/queue"      // security event payloads
	"github.com/mintcrm/auth-service/internal/ratelimit"  // limiter and brute-force guard
	"github.com/mintcrm/auth-service/internal/repository" // DB repositories
	queue_publisher "github.com/mintcrm/auth-service/internal/service"
	"github.com/mintcrm/auth-service/internal/session"   // session & rotation manager
	"github.com/mintcrm/auth-service/internal/token"     // symmetric token codec
	"github.com/mintcrm/auth-service/internal/twofactor" // 2FA service
	"github.com/mintcrm/auth-service/internal/utils"     // password hashing helpers
)

// Guard scopes for the brute-force lockouts.
const (
	guardScopeLogin = "login"
	guardScope2FA   = "2fa"
)

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg       config.Config
	RL        config.RateLimitConfig
	Users     *repository.UserRepo
	Manager   *session.Manager
	TwoFactor *twofactor.Service
	Codec     *token.Codec
	Limiter   *ratelimit.Limiter
	Guard     *ratelimit.Guard
}

func NewAuthHandler(cfg config.Config, rl config.RateLimitConfig, u *repository.UserRepo,
	m *session.Manager, tf *twofactor.Service, codec *token.Codec,
	lim *ratelimit.Limiter, g *ratelimit.Guard) *AuthHandler {
	return &AuthHandler{Cfg: cfg, RL: rl, Users: u, Manager: m, TwoFactor: tf, Codec: codec, Limiter: lim, Guard: g}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type login2FAReq struct {
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}
type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	OrgID uint64 `json:"org_id"`
}

// Login verifies credentials and either opens a session directly or, for
// 2FA-enabled accounts, answers with a short-lived challenge token and no
// cookies.  The endpoint carries both limiter layers: the coarse
// per-origin/per-email caps and the targeted (email, origin) lockout.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	origin := middleware.ClientOrigin(c)

	if res := h.Limiter.Hit(c.Request().Context(), "login_ip", origin, "", h.RL.LoginIPLimit, h.RL.Window); !res.Allowed {
		return middleware.TooMany(c, res.RetryAfter)
	}
	if res := h.Limiter.Hit(c.Request().Context(), "login_email", origin, req.Email, h.RL.LoginIDLimit, h.RL.Window); !res.Allowed {
		return middleware.TooMany(c, res.RetryAfter)
	}
	if retry, err := h.Guard.Enforce(c.Request().Context(), guardScopeLogin, req.Email, origin); err != nil {
		return middleware.TooMany(c, retry)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Count unknown-email attempts too: enumeration probes and
			// password guessing look the same to the guard.
			return h.loginFailed(c, ctx, req.Email, origin, 0)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return h.loginFailed(c, ctx, req.Email, origin, u.ID)
	}
	if !u.IsActive {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
	}
	h.Guard.RecordSuccess(ctx, guardScopeLogin, req.Email, origin)

	if u.TOTPEnabled {
		challenge, err := h.Codec.Encode(token.Claims{Type: token.TypeChallenge, UserID: u.ID}, h.Cfg.ChallengeTTL())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue challenge failed"})
		}
		return c.JSON(http.StatusOK, echo.Map{
			"two_factor_required": true,
			"challenge_token":     challenge,
		})
	}
	return h.openSession(c, ctx, u.ID, false)
}

// loginFailed records the failure, emits audit events, clears any stale
// cookies and answers with an uninformative 401.
func (h *AuthHandler) loginFailed(c echo.Context, ctx context.Context, email, origin string, userID uint64) error {
	locked := h.Guard.RecordFailure(ctx, guardScopeLogin, email, origin)
	_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
		Type: queue.EventLoginFailure, UserID: userID, Email: email, IP: origin,
		UserAgent: c.Request().UserAgent(),
	})
	if locked {
		_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
			Type: queue.EventLockout, UserID: userID, Email: email, IP: origin,
		})
	}
	clearAuthCookies(c, h.Cfg)
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
}

// LoginTwoFactor completes a 2FA login: it exchanges a valid challenge
// token plus a TOTP or recovery code for a session.  Cookies are only
// set here, never by the first login step.
func (h *AuthHandler) LoginTwoFactor(c echo.Context) error {
	var req login2FAReq
	if err := c.Bind(&req); err != nil || req.ChallengeToken == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "challenge_token/code required"})
	}
	cl, err := h.Codec.Decode(req.ChallengeToken, token.TypeChallenge)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired challenge"})
	}
	origin := middleware.ClientOrigin(c)
	identity := strconv.FormatUint(cl.UserID, 10)
	if retry, err := h.Guard.Enforce(c.Request().Context(), guardScope2FA, identity, origin); err != nil {
		return middleware.TooMany(c, retry)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, cl.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired challenge"})
	}
	if err := h.TwoFactor.VerifyCode(ctx, u, req.Code); err != nil {
		locked := h.Guard.RecordFailure(ctx, guardScope2FA, identity, origin)
		_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
			Type: queue.EventTwoFactorFailed, UserID: u.ID, Email: u.Email, IP: origin,
		})
		if locked {
			_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
				Type: queue.EventLockout, UserID: u.ID, Email: u.Email, IP: origin,
			})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}
	h.Guard.RecordSuccess(ctx, guardScope2FA, identity, origin)
	return h.openSession(c, ctx, u.ID, true)
}

// openSession creates the session, marks it step-up verified when the
// login included a second factor, sets the cookie triple, and returns
// the user payload.
func (h *AuthHandler) openSession(c echo.Context, ctx context.Context, userID uint64, mfaVerified bool) error {
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed"})
	}
	meta := session.ClientMeta{IP: middleware.ClientOrigin(c), UserAgent: c.Request().UserAgent()}
	s, pair, err := h.Manager.CreateSession(ctx, u, meta)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
	}
	if mfaVerified {
		if err := h.Manager.MarkStepUp(ctx, s.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create session failed"})
		}
	}
	_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
		Type: queue.EventLoginSuccess, UserID: u.ID, Email: u.Email, SessionID: s.ID,
		IP: meta.IP, UserAgent: meta.UserAgent,
	})
	setAuthCookies(c, h.Cfg, pair)
	return c.JSON(http.StatusOK, echo.Map{"user": userPart{ID: u.ID, Email: u.Email, Role: u.Role, OrgID: u.OrgID}})
}

// Refresh rotates the refresh cookie into a new token pair.  Every
// failure — expired, invalid, reused — answers 401 and clears the cookie
// triple; reuse detection additionally collapsed the session inside the
// manager, but the response does not reveal that.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(h.Cfg.RefreshCookie)
	if err != nil || ck.Value == "" {
		clearAuthCookies(c, h.Cfg)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, err := h.Manager.Rotate(ctx, ck.Value)
	if err != nil {
		if errors.Is(err, session.ErrRefreshReused) {
			_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
				Type: queue.EventRefreshReuse, IP: middleware.ClientOrigin(c),
				UserAgent: c.Request().UserAgent(),
			})
		}
		clearAuthCookies(c, h.Cfg)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	setAuthCookies(c, h.Cfg, pair)
	return c.JSON(http.StatusOK, echo.Map{"refreshed": true})
}

// Logout revokes the current session when one can be resolved and always
// answers 200 with cleared cookies: logging out with a dead session is
// still a successful logout.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw := ""
	if ck, err := c.Cookie(h.Cfg.AccessCookie); err == nil {
		raw = ck.Value
	}
	if raw == "" {
		auth := c.Request().Header.Get("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			raw = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if raw != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if cl, err := h.Codec.Decode(raw, token.TypeAccess); err == nil {
			_ = h.Manager.RevokeSession(ctx, cl.SessionID, session.ReasonLogout)
			_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
				Type: queue.EventSessionRevoked, UserID: cl.UserID, SessionID: cl.SessionID,
				Detail: session.ReasonLogout,
			})
		}
	}
	clearAuthCookies(c, h.Cfg)
	return c.JSON(http.StatusOK, echo.Map{"logged_out": true})
}

// Me returns the authenticated user's identity, mostly for client
// bootstrapping and smoke tests.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": userPart{ID: u.ID, Email: u.Email, Role: u.Role, OrgID: u.OrgID}})
}
