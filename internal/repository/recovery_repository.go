package repository

import (
	"context"
	"database/sql"
	"time"
)

// RecoveryCodeRepo persists hashed 2FA recovery codes.
type RecoveryCodeRepo struct{ DB *sql.DB }

func NewRecoveryCodeRepo(db *sql.DB) *RecoveryCodeRepo { return &RecoveryCodeRepo{DB: db} }

// Replace swaps the user's whole batch inside one transaction so a
// regeneration can never leave a mix of old and new codes behind.
func (r *RecoveryCodeRepo) Replace(ctx context.Context, userID uint64, hashes []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM recovery_codes WHERE user_id=?", userID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO recovery_codes (user_id, code_hash) VALUES (?,?)", userID, h); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteAll removes the batch, used when 2FA is disabled.
func (r *RecoveryCodeRepo) DeleteAll(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM recovery_codes WHERE user_id=?", userID)
	return err
}

// Consume marks the unused code matching the hash as used and reports
// whether one was found. The single conditional UPDATE gives the
// required atomicity: two concurrent requests presenting the same code
// cannot both see used_at IS NULL, so each code verifies exactly once.
func (r *RecoveryCodeRepo) Consume(ctx context.Context, userID uint64, codeHash string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE recovery_codes SET used_at=? WHERE user_id=? AND code_hash=? AND used_at IS NULL",
		at, userID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Status reports how many codes exist and how many remain unused.
func (r *RecoveryCodeRepo) Status(ctx context.Context, userID uint64) (total, remaining int, err error) {
	err = r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(used_at IS NULL),0) FROM recovery_codes WHERE user_id=?",
		userID).Scan(&total, &remaining)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	return total, remaining, err
}
