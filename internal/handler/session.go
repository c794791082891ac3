package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mintcrm/auth-service/internal/middleware"
	"github.com/mintcrm/auth-service/internal/repository"
	"github.com/mintcrm/auth-service/internal/session"
)

type sessionPart struct {
	ID            string     `json:"id"`
	IP            string     `json:"ip"`
	UserAgent     string     `json:"user_agent"`
	Current       bool       `json:"current"`
	Revoked       bool       `json:"revoked"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	MFAVerifiedAt *time.Time `json:"mfa_verified_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type revokeAllReq struct {
	KeepCurrent bool `json:"keep_current"`
}

// ListSessions returns every session of the current user, newest first,
// so a client can render a device-management view.
func (h *AuthHandler) ListSessions(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	cur, _ := middleware.CurrentSession(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sessions, err := h.Manager.ListSessions(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list sessions failed"})
	}
	out := make([]sessionPart, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPart{
			ID:            s.ID,
			IP:            s.IP,
			UserAgent:     s.UserAgent,
			Current:       s.ID == cur.ID,
			Revoked:       s.Revoked(),
			RevokedReason: s.RevokedReason,
			LastSeenAt:    s.LastSeenAt,
			MFAVerifiedAt: s.MFAVerifiedAt,
			CreatedAt:     s.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// RevokeSession ends one of the current user's sessions by id.  A
// session belonging to someone else answers 404, not 403, so session ids
// cannot be probed for existence.
func (h *AuthHandler) RevokeSession(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Manager.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load session failed"})
	}
	if s.UserID != u.ID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	}
	if err := h.Manager.RevokeSession(ctx, s.ID, session.ReasonUserRevoked); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": true})
}

// RevokeAllSessions is "log out everywhere": it ends every active
// session of the user, sparing the current one only when asked to.
func (h *AuthHandler) RevokeAllSessions(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	cur, _ := middleware.CurrentSession(c)

	var req revokeAllReq
	_ = c.Bind(&req) // an empty body means revoke everything
	keep := ""
	if req.KeepCurrent {
		keep = cur.ID
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Manager.RevokeAllSessions(ctx, u.ID, keep, session.ReasonUserRevoked); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
	}
	if !req.KeepCurrent {
		clearAuthCookies(c, h.Cfg)
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": true})
}
