package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mintcrm/auth-service/internal/middleware"
	"github.com/mintcrm/auth-service/internal/queue"
	queue_publisher "github.com/mintcrm/auth-service/internal/service"
	"github.com/mintcrm/auth-service/internal/twofactor"
)

type codeReq struct {
	Code string `json:"code"`
}

// TwoFactorSetup starts enrollment: it generates a pending secret and
// returns the base32 form plus the otpauth URI for the QR code.  Nothing
// is enforced until Enable confirms the secret with one valid code.
func (h *AuthHandler) TwoFactorSetup(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	secret, uri, err := h.TwoFactor.Setup(ctx, u)
	if err != nil {
		if errors.Is(err, twofactor.ErrAlreadyEnabled) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "two-factor already enabled"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "setup failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"secret": secret, "otpauth_uri": uri})
}

// TwoFactorEnable confirms the pending secret.  On success the response
// carries the recovery codes — the only time they exist in plaintext —
// and every other session of the user has been revoked.
func (h *AuthHandler) TwoFactorEnable(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	cur, _ := middleware.CurrentSession(c)

	var req codeReq
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	codes, err := h.TwoFactor.Enable(ctx, u, cur.ID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, twofactor.ErrAlreadyEnabled):
			return c.JSON(http.StatusConflict, echo.Map{"error": "two-factor already enabled"})
		case errors.Is(err, twofactor.ErrNotPending):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "setup not started"})
		case errors.Is(err, twofactor.ErrInvalidCode):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enable failed"})
	}
	_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
		Type: queue.EventTwoFactorEnabled, UserID: u.ID, Email: u.Email, SessionID: cur.ID,
		IP: middleware.ClientOrigin(c),
	})
	return c.JSON(http.StatusOK, echo.Map{"enabled": true, "recovery_codes": codes})
}

// TwoFactorStepUp lets an authenticated user re-prove possession of the
// second factor without a full re-login, refreshing the session's
// step-up timestamp that privileged routes check.
func (h *AuthHandler) TwoFactorStepUp(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	cur, _ := middleware.CurrentSession(c)

	var req codeReq
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}
	origin := middleware.ClientOrigin(c)
	identity := strconv.FormatUint(u.ID, 10)
	if retry, err := h.Guard.Enforce(c.Request().Context(), guardScope2FA, identity, origin); err != nil {
		return middleware.TooMany(c, retry)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.TwoFactor.StepUp(ctx, u, cur.ID, req.Code); err != nil {
		if errors.Is(err, twofactor.ErrInvalidCode) {
			h.Guard.RecordFailure(ctx, guardScope2FA, identity, origin)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "step-up failed"})
	}
	h.Guard.RecordSuccess(ctx, guardScope2FA, identity, origin)
	return c.JSON(http.StatusOK, echo.Map{"verified": true})
}

// TwoFactorDisable turns 2FA off after one final code verification.
func (h *AuthHandler) TwoFactorDisable(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)

	var req codeReq
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.TwoFactor.Disable(ctx, u, req.Code); err != nil {
		switch {
		case errors.Is(err, twofactor.ErrNotEnabled):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "two-factor not enabled"})
		case errors.Is(err, twofactor.ErrInvalidCode):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "disable failed"})
	}
	_ = queue_publisher.PublishSecurityEvent(ctx, queue.SecurityEvent{
		Type: queue.EventTwoFactorDisabled, UserID: u.ID, Email: u.Email,
		IP: middleware.ClientOrigin(c),
	})
	return c.JSON(http.StatusOK, echo.Map{"disabled": true})
}

// TwoFactorStatus reports the user's 2FA state plus how fresh the
// current session's step-up is, so clients can pre-empt a 428.
func (h *AuthHandler) TwoFactorStatus(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	cur, _ := middleware.CurrentSession(c)

	st := h.TwoFactor.StatusFor(u)
	return c.JSON(http.StatusOK, echo.Map{
		"enabled":         st.Enabled,
		"pending":         st.Pending,
		"confirmed_at":    st.ConfirmedAt,
		"mfa_verified_at": cur.MFAVerifiedAt,
	})
}

// TwoFactorRecoveryRegenerate replaces the recovery batch after a fresh
// TOTP check and returns the new plaintext codes.
func (h *AuthHandler) TwoFactorRecoveryRegenerate(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)

	var req codeReq
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	codes, err := h.TwoFactor.RegenerateRecoveryCodes(ctx, u, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, twofactor.ErrNotEnabled):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "two-factor not enabled"})
		case errors.Is(err, twofactor.ErrInvalidCode):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "regenerate failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"recovery_codes": codes})
}

// TwoFactorRecoveryStatus reports total and remaining recovery codes.
func (h *AuthHandler) TwoFactorRecoveryStatus(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	total, remaining, err := h.TwoFactor.RecoveryStatus(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "status failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"total": total, "remaining": remaining})
}
