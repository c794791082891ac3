// Package session implements the session lifecycle state machine:
// creation, access authorization, refresh rotation with reuse
// detection, and cascading revocation.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mintcrm/auth-service/internal/model"
	"github.com/mintcrm/auth-service/internal/repository"
	"github.com/mintcrm/auth-service/internal/token"
)

// Revocation reasons recorded on sessions. A session reaches exactly one
// of these and never leaves the revoked state.
const (
	ReasonLogout           = "logout"
	ReasonUserRevoked      = "user_revoked"
	ReasonPasswordReset    = "password_reset"
	ReasonRefreshReuse     = "refresh_reuse"
	ReasonRefreshExpired   = "refresh_expired"
	ReasonTwoFactorEnabled = "two_factor_enabled"
)

// Errors surfaced by the manager. ErrRefreshReused wraps ErrTokenInvalid
// so boundary code that only checks for invalid tokens still fails
// closed; the distinction exists for audit, not for the HTTP response —
// an attacker must not learn that theft was detected.
var (
	ErrTokenInvalid   = errors.New("token invalid")
	ErrSessionRevoked = errors.New("session revoked")
	ErrRefreshReused  = fmt.Errorf("refresh token reused: %w", ErrTokenInvalid)
)

// Store interfaces cover exactly what the manager needs from the
// repositories, so tests can substitute in-memory fakes.

type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

type SessionStore interface {
	Insert(ctx context.Context, s model.Session) error
	Get(ctx context.Context, id string) (model.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	MarkMFAVerified(ctx context.Context, id string, at time.Time) error
	Revoke(ctx context.Context, id, reason string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uint64, keep, reason string, at time.Time) ([]string, error)
	ListForUser(ctx context.Context, userID uint64) ([]model.Session, error)
}

type RefreshStore interface {
	Insert(ctx context.Context, rec model.RefreshToken) error
	Get(ctx context.Context, sessionID, jti string) (model.RefreshToken, error)
	ClaimForRotation(ctx context.Context, sessionID, jti, newJTI string, at time.Time) (bool, error)
	Revoke(ctx context.Context, sessionID, jti string, at time.Time) error
	RevokeAllForSession(ctx context.Context, sessionID string, at time.Time) error
}

// ClientMeta is the device metadata captured when a session is created.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// TokenPair is an issued access/refresh pair with their expiries, for
// cookie lifetimes and API responses.
type TokenPair struct {
	AccessToken   string
	AccessExpiry  time.Time
	RefreshToken  string
	RefreshExpiry time.Time
}

// Config tunes token lifetimes and the heartbeat throttle.
type Config struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	HeartbeatInterval time.Duration
}

// Manager drives the session state machine over injected stores.
type Manager struct {
	cfg      Config
	codec    *token.Codec
	users    UserStore
	sessions SessionStore
	refresh  RefreshStore
	now      func() time.Time
}

// NewManager wires a Manager. The clock is injectable for tests and
// defaults to UTC wall time.
func NewManager(cfg Config, codec *token.Codec, users UserStore, sessions SessionStore, refresh RefreshStore) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		codec:    codec,
		users:    users,
		sessions: sessions,
		refresh:  refresh,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the manager's clock. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// CreateSession allocates a session for the user, records the first
// refresh token, and issues the initial token pair. After this call the
// session has exactly one non-revoked refresh record.
func (m *Manager) CreateSession(ctx context.Context, user model.User, meta ClientMeta) (model.Session, TokenPair, error) {
	now := m.now()
	s := model.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := m.sessions.Insert(ctx, s); err != nil {
		return model.Session{}, TokenPair{}, err
	}
	pair, err := m.issuePair(ctx, user.ID, s.ID)
	if err != nil {
		return model.Session{}, TokenPair{}, err
	}
	return s, pair, nil
}

// AuthorizeAccess resolves an access token to its user. It fails closed
// on any decode problem, a missing session, or a revoked session. As a
// side effect it bumps the session heartbeat when stale; that write is
// best-effort and can never turn a valid authorization into a failure.
func (m *Manager) AuthorizeAccess(ctx context.Context, raw string) (model.User, model.Session, error) {
	cl, err := m.codec.Decode(raw, token.TypeAccess)
	if err != nil {
		return model.User{}, model.Session{}, ErrTokenInvalid
	}
	s, err := m.sessions.Get(ctx, cl.SessionID)
	if err != nil {
		return model.User{}, model.Session{}, ErrSessionRevoked
	}
	if s.Revoked() || s.UserID != cl.UserID {
		return model.User{}, model.Session{}, ErrSessionRevoked
	}
	u, err := m.users.GetByID(ctx, s.UserID)
	if err != nil {
		return model.User{}, model.Session{}, ErrSessionRevoked
	}

	now := m.now()
	if now.Sub(s.LastSeenAt) > m.cfg.HeartbeatInterval {
		m.tryHeartbeat(ctx, s.ID, now)
		s.LastSeenAt = now
	}
	return u, s, nil
}

// tryHeartbeat makes the "this failure is intentionally ignored"
// decision visible instead of hiding it behind a swallowed error at
// every call site.
func (m *Manager) tryHeartbeat(ctx context.Context, sessionID string, at time.Time) {
	_ = m.sessions.Touch(ctx, sessionID, at)
}

// Rotate exchanges a valid refresh token for a new pair, invalidating
// the old one. A refresh token can be redeemed exactly once: presenting
// one that was already rotated (or is otherwise not live) is treated as
// theft and collapses the whole session, not just the token.
func (m *Manager) Rotate(ctx context.Context, raw string) (TokenPair, error) {
	cl, err := m.codec.Decode(raw, token.TypeRefresh)
	if err != nil {
		return TokenPair{}, ErrTokenInvalid
	}
	now := m.now()

	s, err := m.sessions.Get(ctx, cl.SessionID)
	if err != nil {
		return TokenPair{}, ErrTokenInvalid
	}
	if s.Revoked() {
		return TokenPair{}, ErrSessionRevoked
	}

	rec, err := m.refresh.Get(ctx, cl.SessionID, cl.JTI)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, m.reuseDetected(ctx, s.ID)
		}
		return TokenPair{}, ErrTokenInvalid
	}
	if rec.RevokedAt != nil || rec.ReplacedByJTI != "" {
		return TokenPair{}, m.reuseDetected(ctx, s.ID)
	}
	if now.After(rec.ExpiresAt) {
		_ = m.refresh.Revoke(ctx, s.ID, rec.JTI, now)
		m.revoke(ctx, s.ID, ReasonRefreshExpired, now)
		return TokenPair{}, ErrTokenInvalid
	}

	newJTI := uuid.NewString()
	claimed, err := m.refresh.ClaimForRotation(ctx, s.ID, cl.JTI, newJTI, now)
	if err != nil {
		return TokenPair{}, err
	}
	if !claimed {
		// Lost the race against a concurrent rotation of the same token:
		// someone else redeemed it first, which is indistinguishable from
		// replay of a stolen token.
		return TokenPair{}, m.reuseDetected(ctx, s.ID)
	}

	pair, err := m.issuePairJTI(ctx, s.UserID, s.ID, newJTI)
	if err != nil {
		return TokenPair{}, err
	}
	m.tryHeartbeat(ctx, s.ID, now)
	return pair, nil
}

// reuseDetected revokes the session and reports the failure. The outward
// error is deliberately just an invalid-token error; see ErrRefreshReused.
func (m *Manager) reuseDetected(ctx context.Context, sessionID string) error {
	m.revoke(ctx, sessionID, ReasonRefreshReuse, m.now())
	return ErrRefreshReused
}

// RevokeSession terminates one session and every live refresh record it
// owns.
func (m *Manager) RevokeSession(ctx context.Context, sessionID, reason string) error {
	now := m.now()
	if err := m.sessions.Revoke(ctx, sessionID, reason, now); err != nil {
		return err
	}
	return m.refresh.RevokeAllForSession(ctx, sessionID, now)
}

func (m *Manager) revoke(ctx context.Context, sessionID, reason string, at time.Time) {
	// Revocation on a failure path: report nothing to the caller beyond
	// the primary error, but do not swallow partial store failures into
	// a half-revoked session silently either — the refresh cascade runs
	// regardless of the session update outcome.
	_ = m.sessions.Revoke(ctx, sessionID, reason, at)
	_ = m.refresh.RevokeAllForSession(ctx, sessionID, at)
}

// RevokeAllSessions ends every active session of a user, optionally
// keeping one (log-out-everywhere-else). Partial failure is reported,
// never silently half-applied.
func (m *Manager) RevokeAllSessions(ctx context.Context, userID uint64, keep, reason string) error {
	now := m.now()
	ids, err := m.sessions.RevokeAllForUser(ctx, userID, keep, reason, now)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, id := range ids {
		if err := m.refresh.RevokeAllForSession(ctx, id, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MarkStepUp records a fresh 2FA verification on the session.
func (m *Manager) MarkStepUp(ctx context.Context, sessionID string) error {
	return m.sessions.MarkMFAVerified(ctx, sessionID, m.now())
}

// ListSessions returns the user's sessions for device management.
func (m *Manager) ListSessions(ctx context.Context, userID uint64) ([]model.Session, error) {
	return m.sessions.ListForUser(ctx, userID)
}

// GetSession loads one session; used by the per-session revoke endpoint
// to verify ownership before acting.
func (m *Manager) GetSession(ctx context.Context, id string) (model.Session, error) {
	return m.sessions.Get(ctx, id)
}

func (m *Manager) issuePair(ctx context.Context, userID uint64, sessionID string) (TokenPair, error) {
	return m.issuePairJTI(ctx, userID, sessionID, uuid.NewString())
}

// issuePairJTI records a refresh token row and signs both tokens. The
// record's expiry is always issuance time plus the configured lifetime.
func (m *Manager) issuePairJTI(ctx context.Context, userID uint64, sessionID, jti string) (TokenPair, error) {
	now := m.now()
	rec := model.RefreshToken{
		SessionID: sessionID,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.cfg.RefreshTTL),
	}
	if err := m.refresh.Insert(ctx, rec); err != nil {
		return TokenPair{}, err
	}
	access, err := m.codec.Encode(token.Claims{
		Type: token.TypeAccess, UserID: userID, SessionID: sessionID,
	}, m.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.codec.Encode(token.Claims{
		Type: token.TypeRefresh, UserID: userID, SessionID: sessionID, JTI: jti,
	}, m.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:   access,
		AccessExpiry:  now.Add(m.cfg.AccessTTL),
		RefreshToken:  refresh,
		RefreshExpiry: rec.ExpiresAt,
	}, nil
}
