package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mintcrm/auth-service/internal/model"
)

// RefreshRepo persists refresh-token records: one row per issued token,
// linked into a rotation chain through replaced_by_jti.
type RefreshRepo struct{ DB *sql.DB }

func NewRefreshRepo(db *sql.DB) *RefreshRepo { return &RefreshRepo{DB: db} }

// Insert stores a newly issued record.
func (r *RefreshRepo) Insert(ctx context.Context, rec model.RefreshToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (session_id, jti, issued_at, expires_at) VALUES (?,?,?,?)",
		rec.SessionID, rec.JTI, rec.IssuedAt, rec.ExpiresAt)
	return err
}

// Get loads the record matching (session_id, jti).
func (r *RefreshRepo) Get(ctx context.Context, sessionID, jti string) (model.RefreshToken, error) {
	var (
		rec        model.RefreshToken
		revokedAt  sql.NullTime
		replacedBy sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,session_id,jti,issued_at,expires_at,revoked_at,replaced_by_jti FROM refresh_tokens WHERE session_id=? AND jti=? LIMIT 1",
		sessionID, jti).
		Scan(&rec.ID, &rec.SessionID, &rec.JTI, &rec.IssuedAt, &rec.ExpiresAt, &revokedAt, &replacedBy)
	if err == sql.ErrNoRows {
		return model.RefreshToken{}, ErrNotFound
	}
	if err != nil {
		return model.RefreshToken{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	if replacedBy.Valid {
		rec.ReplacedByJTI = replacedBy.String
	}
	return rec, nil
}

// ClaimForRotation atomically marks a live record as rotated to newJTI.
// The conditional UPDATE is what linearizes concurrent rotations: the
// row can only move from live to rotated once, so of two racing calls
// exactly one observes a claimed row and the loser sees zero rows —
// which the session manager treats as reuse.
func (r *RefreshRepo) ClaimForRotation(ctx context.Context, sessionID, jti, newJTI string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=?, replaced_by_jti=? WHERE session_id=? AND jti=? AND revoked_at IS NULL AND replaced_by_jti IS NULL",
		at, newJTI, sessionID, jti)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Revoke marks a single record revoked without linking a successor
// (used when a record expires).
func (r *RefreshRepo) Revoke(ctx context.Context, sessionID, jti string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE session_id=? AND jti=? AND revoked_at IS NULL",
		at, sessionID, jti)
	return err
}

// RevokeAllForSession revokes every live record of a session so a stolen
// refresh token cannot resurrect a revoked session through a separate
// rotation path.
func (r *RefreshRepo) RevokeAllForSession(ctx context.Context, sessionID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE session_id=? AND revoked_at IS NULL",
		at, sessionID)
	return err
}
