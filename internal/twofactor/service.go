// Package twofactor implements the per-user 2FA state machine
// (disabled → pending → enabled) and step-up verification on top of the
// TOTP engine.
package twofactor

import (
	"context"
	"errors"
	"time"

	"github.com/mintcrm/auth-service/internal/model"
	"github.com/mintcrm/auth-service/internal/session"
	"github.com/mintcrm/auth-service/internal/totp"
)

var (
	// ErrInvalidCode covers wrong codes, replayed codes and spent
	// recovery codes alike; callers must not be able to tell which.
	ErrInvalidCode = errors.New("invalid two-factor code")
	// ErrNotEnabled is returned for operations that require confirmed 2FA.
	ErrNotEnabled = errors.New("two-factor not enabled")
	// ErrNotPending is returned when enable is called without a setup.
	ErrNotPending = errors.New("two-factor setup not started")
	// ErrAlreadyEnabled guards setup against clobbering a live secret.
	ErrAlreadyEnabled = errors.New("two-factor already enabled")
)

// UserStore is the slice of the user repository the service needs.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	SetPendingTOTP(ctx context.Context, id uint64, encSecret string) error
	ConfirmTOTP(ctx context.Context, id uint64) error
	DisableTOTP(ctx context.Context, id uint64) error
	AdvanceTOTPStep(ctx context.Context, id uint64, step int64) (bool, error)
}

// RecoveryStore persists hashed recovery codes.
type RecoveryStore interface {
	Replace(ctx context.Context, userID uint64, hashes []string) error
	DeleteAll(ctx context.Context, userID uint64) error
	Consume(ctx context.Context, userID uint64, codeHash string, at time.Time) (bool, error)
	Status(ctx context.Context, userID uint64) (total, remaining int, err error)
}

// SessionControl is the slice of the session manager the service needs:
// enabling 2FA is a trust boundary that must end every other session.
type SessionControl interface {
	RevokeAllSessions(ctx context.Context, userID uint64, keep, reason string) error
	MarkStepUp(ctx context.Context, sessionID string) error
}

// Config tunes the service.
type Config struct {
	Issuer    string // label shown in authenticator apps
	Skew      int    // accepted steps either side of now
	SecretKey string // keys secret encryption and recovery-code hashing
}

// Status is the user-facing 2FA state.
type Status struct {
	Enabled     bool
	Pending     bool
	ConfirmedAt *time.Time
}

// Service drives the 2FA lifecycle.
type Service struct {
	cfg      Config
	users    UserStore
	recovery RecoveryStore
	sessions SessionControl
	now      func() time.Time
}

// NewService wires the service; the clock is injectable for tests.
func NewService(cfg Config, users UserStore, recovery RecoveryStore, sessions SessionControl) *Service {
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	return &Service{
		cfg:      cfg,
		users:    users,
		recovery: recovery,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Setup generates a pending secret for the user and returns the base32
// secret plus the otpauth:// URI for the enrollment QR code. Calling it
// again before enable simply replaces the pending secret.
func (s *Service) Setup(ctx context.Context, user model.User) (secretBase32, uri string, err error) {
	if user.TOTPEnabled {
		return "", "", ErrAlreadyEnabled
	}
	raw, b32, err := totp.GenerateSecret()
	if err != nil {
		return "", "", err
	}
	enc, err := totp.EncryptSecret(s.cfg.SecretKey, raw)
	if err != nil {
		return "", "", err
	}
	if err := s.users.SetPendingTOTP(ctx, user.ID, enc); err != nil {
		return "", "", err
	}
	return b32, totp.ProvisionURI(s.cfg.Issuer, user.Email, b32), nil
}

// Enable confirms the pending secret with one valid code, generates the
// recovery code batch, and — because enabling 2FA is itself a trust
// boundary — revokes every other session of the user and records a
// step-up on the current one. Returns the plaintext recovery codes; they
// are never retrievable again.
func (s *Service) Enable(ctx context.Context, user model.User, currentSessionID, code string) ([]string, error) {
	if user.TOTPEnabled {
		return nil, ErrAlreadyEnabled
	}
	if user.TOTPSecret == "" {
		return nil, ErrNotPending
	}
	if err := s.verifyTOTP(ctx, user, code); err != nil {
		return nil, err
	}
	if err := s.users.ConfirmTOTP(ctx, user.ID); err != nil {
		return nil, err
	}

	codes, err := totp.GenerateRecoveryCodes(totp.DefaultRecoveryCodes)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = totp.HashRecoveryCode(s.cfg.SecretKey, c)
	}
	if err := s.recovery.Replace(ctx, user.ID, hashes); err != nil {
		return nil, err
	}

	if err := s.sessions.RevokeAllSessions(ctx, user.ID, currentSessionID, session.ReasonTwoFactorEnabled); err != nil {
		return nil, err
	}
	if err := s.sessions.MarkStepUp(ctx, currentSessionID); err != nil {
		return nil, err
	}
	return codes, nil
}

// StepUp re-proves possession of the second factor (TOTP code or a
// recovery code) on an already-authenticated session and refreshes its
// mfa_verified_at. When 2FA is not enabled this is a no-op success:
// step-up only binds users who opted in.
func (s *Service) StepUp(ctx context.Context, user model.User, sessionID, code string) error {
	if !user.TOTPEnabled {
		return nil
	}
	if err := s.VerifyCode(ctx, user, code); err != nil {
		return err
	}
	return s.sessions.MarkStepUp(ctx, sessionID)
}

// VerifyCode accepts either a TOTP code or a recovery code. Used by the
// 2FA login step and by step-up. Both paths are single-use: TOTP through
// the step ratchet, recovery codes through consume-once storage.
func (s *Service) VerifyCode(ctx context.Context, user model.User, code string) error {
	if !user.TOTPEnabled {
		return ErrNotEnabled
	}
	if err := s.verifyTOTP(ctx, user, code); err == nil {
		return nil
	} else if !errors.Is(err, ErrInvalidCode) {
		return err
	}
	// Not a valid TOTP code right now; it may be a recovery code.
	hash := totp.HashRecoveryCode(s.cfg.SecretKey, code)
	used, err := s.recovery.Consume(ctx, user.ID, hash, s.now())
	if err != nil {
		return err
	}
	if !used {
		return ErrInvalidCode
	}
	return nil
}

// Disable turns 2FA off after one last code verification and deletes the
// recovery batch.
func (s *Service) Disable(ctx context.Context, user model.User, code string) error {
	if !user.TOTPEnabled {
		return ErrNotEnabled
	}
	if err := s.VerifyCode(ctx, user, code); err != nil {
		return err
	}
	if err := s.users.DisableTOTP(ctx, user.ID); err != nil {
		return err
	}
	return s.recovery.DeleteAll(ctx, user.ID)
}

// RegenerateRecoveryCodes replaces the batch after a fresh code check and
// returns the new plaintext codes.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, user model.User, code string) ([]string, error) {
	if !user.TOTPEnabled {
		return nil, ErrNotEnabled
	}
	if err := s.verifyTOTP(ctx, user, code); err != nil {
		return nil, err
	}
	codes, err := totp.GenerateRecoveryCodes(totp.DefaultRecoveryCodes)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = totp.HashRecoveryCode(s.cfg.SecretKey, c)
	}
	if err := s.recovery.Replace(ctx, user.ID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// RecoveryStatus reports total and remaining recovery codes.
func (s *Service) RecoveryStatus(ctx context.Context, user model.User) (total, remaining int, err error) {
	return s.recovery.Status(ctx, user.ID)
}

// StatusFor summarizes a user's 2FA state.
func (s *Service) StatusFor(user model.User) Status {
	return Status{
		Enabled:     user.TOTPEnabled,
		Pending:     !user.TOTPEnabled && user.TOTPSecret != "",
		ConfirmedAt: user.TOTPConfirmedAt,
	}
}

// verifyTOTP checks a code against the user's secret and advances the
// step ratchet. A match is only accepted while its step is strictly
// greater than the last consumed one, and the conditional ratchet
// advance ensures that of two concurrent requests with the same code,
// only one succeeds.
func (s *Service) verifyTOTP(ctx context.Context, user model.User, code string) error {
	if user.TOTPSecret == "" {
		return ErrInvalidCode
	}
	secret, err := totp.DecryptSecret(s.cfg.SecretKey, user.TOTPSecret)
	if err != nil {
		return err
	}
	ok, step, err := totp.Verify(secret, code, s.cfg.Skew, s.now())
	if err != nil {
		return err
	}
	if !ok || step <= user.TOTPLastStep {
		return ErrInvalidCode
	}
	advanced, err := s.users.AdvanceTOTPStep(ctx, user.ID, step)
	if err != nil {
		return err
	}
	if !advanced {
		return ErrInvalidCode
	}
	return nil
}
