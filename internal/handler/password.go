package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mintcrm/auth-service/internal/middleware"
	"github.com/mintcrm/auth-service/internal/model"
	"github.com/mintcrm/auth-service/internal/queue"
	"github.com/mintcrm/auth-service/internal/repository"
	queue_publisher "github.com/mintcrm/auth-service/internal/service"
	"github.com/mintcrm/auth-service/internal/session"
	"github.com/mintcrm/auth-service/internal/token"
)

const minPasswordLen = 10

type forgotReq struct {
	Email string `json:"email"`
}
type resetReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
type inviteReq struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	OrgID uint64 `json:"org_id"`
}
type inviteAcceptReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}
type verifyReq struct {
	Token string `json:"token"`
}

// ForgotPassword issues a reset token for a known account.  The answer
// is 202 whether the email exists or not; the token leaves the service
// only through the security event stream, where delivery is someone
// else's job.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	origin := middleware.ClientOrigin(c)
	if res := h.Limiter.Hit(c.Request().Context(), "pw_forgot", origin, req.Email, h.RL.LoginIDLimit, h.RL.Window); !res.Allowed {
		return middleware.TooMany(c, res.RetryAfter)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err == nil {
		reset, encErr := h.Codec.Encode(token.Claims{Type: token.TypeReset, UserID: u.ID, Email: u.Email}, h.Cfg.ResetTTL())
		if encErr == nil {
			_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
				Type: queue.EventResetRequested, UserID: u.ID, Email: u.Email,
				IP: origin, Detail: reset,
			})
		}
	}
	return c.JSON(http.StatusAccepted, echo.Map{"accepted": true})
}

// ResetPassword exchanges a valid reset token for a new password.  The
// reset collapses every session of the account, so a token thief who
// already held a session loses it along with the old password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token/new_password required"})
	}
	if len(req.NewPassword) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
	}
	cl, err := h.Codec.Decode(req.Token, token.TypeReset)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, cl.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, req.NewPassword, h.Cfg.BcryptCost); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	if err := h.Manager.RevokeAllSessions(ctx, u.ID, "", session.ReasonPasswordReset); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
		Type: queue.EventPasswordReset, UserID: u.ID, Email: u.Email,
		IP: middleware.ClientOrigin(c),
	})
	clearAuthCookies(c, h.Cfg)
	return c.JSON(http.StatusOK, echo.Map{"reset": true})
}

// Invite mints an invite token binding email, role and org.  Admin-only,
// behind a fresh step-up; the token travels via the event stream like
// reset tokens do.
func (h *AuthHandler) Invite(c echo.Context) error {
	admin, _ := middleware.CurrentUser(c)

	var req inviteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	switch req.Role {
	case model.RoleUser, model.RoleEditor, model.RoleAdmin:
	case "":
		req.Role = model.RoleUser
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}
	// Admins invite into their own org unless they say otherwise.
	if req.OrgID == 0 {
		req.OrgID = admin.OrgID
	}

	invite, err := h.Codec.Encode(token.Claims{
		Type: token.TypeInvite, Email: req.Email, Role: req.Role, OrgID: req.OrgID,
	}, h.Cfg.InviteTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue invite failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"invite_token": invite, "email": req.Email, "role": req.Role})
}

// InviteAccept creates the invited account in an inactive state and
// hands back a verify token so the email can be proven before first
// login.
func (h *AuthHandler) InviteAccept(c echo.Context) error {
	var req inviteAcceptReq
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token/password required"})
	}
	if len(req.Password) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
	}
	cl, err := h.Codec.Decode(req.Token, token.TypeInvite)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Users.Create(ctx, cl.Email, req.Password, cl.Role, cl.OrgID, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "account already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	verify, err := h.Codec.Encode(token.Claims{Type: token.TypeVerify, UserID: id, Email: cl.Email}, h.Cfg.InviteTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue verify failed"})
	}
	_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
		Type: "user.invited_accepted", UserID: id, Email: cl.Email,
		IP: middleware.ClientOrigin(c), Detail: verify,
	})
	return c.JSON(http.StatusCreated, echo.Map{"created": true})
}

// VerifyEmail activates an account from a verify token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}
	cl, err := h.Codec.Decode(req.Token, token.TypeVerify)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, cl.Email)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})
	}
	if err := h.Users.MarkVerified(ctx, u.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verify failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"verified": true})
}
