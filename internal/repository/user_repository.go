package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mintcrm/auth-service/internal/model"
	"github.com/mintcrm/auth-service/internal/utils"
)

const userColumns = "id,email,password_hash,role,org_id,totp_enabled,totp_secret,totp_confirmed_at,totp_last_step,is_active,created_at,updated_at"

// UserRepo reads and updates rows in the `users` table. The business
// profile of a user is owned elsewhere; this subsystem only touches
// credentials and the 2FA columns.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID. Used by invite acceptance
// and by tests.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, orgID uint64, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, org_id) VALUES (?,?,?,?)",
		email, hash, role, orgID)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=NOW() WHERE id=?", hash, id)
	return err
}

// MarkVerified activates an account after email verification.
func (r *UserRepo) MarkVerified(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=1, updated_at=NOW() WHERE id=?", id)
	return err
}

// SetPendingTOTP stores a freshly generated (encrypted) secret without
// enabling 2FA: the user is in the "pending" state until one code
// verifies against it.
func (r *UserRepo) SetPendingTOTP(ctx context.Context, id uint64, encSecret string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_secret=?, totp_enabled=0, totp_confirmed_at=NULL, totp_last_step=0, updated_at=NOW() WHERE id=?",
		encSecret, id)
	return err
}

// ConfirmTOTP flips the user into the enabled state. The WHERE clause
// requires a pending secret so a stray confirm cannot enable 2FA for a
// user who never set one up.
func (r *UserRepo) ConfirmTOTP(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_enabled=1, totp_confirmed_at=NOW(), updated_at=NOW() WHERE id=? AND totp_secret<>'' AND totp_enabled=0",
		id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableTOTP clears every 2FA field.
func (r *UserRepo) DisableTOTP(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_enabled=0, totp_secret='', totp_confirmed_at=NULL, totp_last_step=0, updated_at=NOW() WHERE id=?",
		id)
	return err
}

// AdvanceTOTPStep moves the replay ratchet forward. The conditional
// WHERE makes the ratchet monotonic under concurrency: of two requests
// presenting codes for the same step, only one can win.
func (r *UserRepo) AdvanceTOTPStep(ctx context.Context, id uint64, step int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET totp_last_step=?, updated_at=NOW() WHERE id=? AND totp_last_step<?",
		step, id, step)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u           model.User
		confirmedAt sql.NullTime
		secret      sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.OrgID,
		&u.TOTPEnabled, &secret, &confirmedAt, &u.TOTPLastStep,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if secret.Valid {
		u.TOTPSecret = secret.String
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		u.TOTPConfirmedAt = &t
	}
	return u, nil
}
