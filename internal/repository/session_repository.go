package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mintcrm/auth-service/internal/model"
)

const sessionColumns = "id,user_id,ip,user_agent,revoked_at,revoked_reason,last_seen_at,mfa_verified_at,created_at,updated_at"

// SessionRepo persists sessions. Sessions are never deleted; revocation
// is a terminal state update retained for audit.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Insert stores a freshly created session.
func (r *SessionRepo) Insert(ctx context.Context, s model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, ip, user_agent, last_seen_at) VALUES (?,?,?,?,?)",
		s.ID, s.UserID, s.IP, s.UserAgent, s.LastSeenAt)
	return err
}

// Get loads a session by id.
func (r *SessionRepo) Get(ctx context.Context, id string) (model.Session, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id=? LIMIT 1", id))
}

// Touch bumps last_seen_at. Callers throttle this to once per heartbeat
// interval and discard the error: a failed heartbeat must never fail an
// otherwise valid request.
func (r *SessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET last_seen_at=?, updated_at=NOW() WHERE id=?", at, id)
	return err
}

// MarkMFAVerified records a successful 2FA step-up on the session.
func (r *SessionRepo) MarkMFAVerified(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET mfa_verified_at=?, updated_at=NOW() WHERE id=?", at, id)
	return err
}

// Revoke moves a session into its terminal state. The revoked_at IS NULL
// guard makes the transition idempotent and preserves the first reason.
func (r *SessionRepo) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET revoked_at=?, revoked_reason=?, updated_at=NOW() WHERE id=? AND revoked_at IS NULL",
		at, reason, id)
	return err
}

// RevokeAllForUser revokes every active session of a user, optionally
// sparing one (the caller's current session). Returns the ids that were
// targeted so the caller can cascade refresh-record revocation.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uint64, keep string, reason string, at time.Time) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id FROM sessions WHERE user_id=? AND revoked_at IS NULL AND id<>?", userID, keep)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := r.Revoke(ctx, id, reason, at); err != nil {
			return ids, err
		}
	}
	return ids, nil
}

// ListForUser returns all sessions of a user, newest first, revoked ones
// included so the device-management UI can show history.
func (r *SessionRepo) ListForUser(ctx context.Context, userID uint64) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id=? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func (r *SessionRepo) scanOne(row *sql.Row) (model.Session, error) {
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return model.Session{}, ErrNotFound
	}
	return s, err
}

func scanSession(row rowScanner) (model.Session, error) {
	var (
		s         model.Session
		revokedAt sql.NullTime
		reason    sql.NullString
		mfaAt     sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.IP, &s.UserAgent, &revokedAt, &reason,
		&s.LastSeenAt, &mfaAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Session{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		s.RevokedAt = &t
	}
	if reason.Valid {
		s.RevokedReason = reason.String
	}
	if mfaAt.Valid {
		t := mfaAt.Time
		s.MFAVerifiedAt = &t
	}
	return s, nil
}
