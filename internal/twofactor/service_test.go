package twofactor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mintcrm/auth-service/internal/model"
	"github.com/mintcrm/auth-service/internal/repository"
	"github.com/mintcrm/auth-service/internal/session"
	"github.com/mintcrm/auth-service/internal/totp"
)

// ----- fakes -----

type fakeUsers struct {
	mu    sync.Mutex
	users map[uint64]model.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) SetPendingTOTP(_ context.Context, id uint64, encSecret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.TOTPSecret = encSecret
	u.TOTPEnabled = false
	u.TOTPConfirmedAt = nil
	u.TOTPLastStep = 0
	f.users[id] = u
	return nil
}

func (f *fakeUsers) ConfirmTOTP(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	if u.TOTPSecret == "" || u.TOTPEnabled {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.TOTPEnabled = true
	u.TOTPConfirmedAt = &now
	f.users[id] = u
	return nil
}

func (f *fakeUsers) DisableTOTP(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.TOTPEnabled = false
	u.TOTPSecret = ""
	u.TOTPConfirmedAt = nil
	u.TOTPLastStep = 0
	f.users[id] = u
	return nil
}

func (f *fakeUsers) AdvanceTOTPStep(_ context.Context, id uint64, step int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	if u.TOTPLastStep >= step {
		return false, nil
	}
	u.TOTPLastStep = step
	f.users[id] = u
	return true, nil
}

type fakeRecovery struct {
	mu     sync.Mutex
	hashes map[uint64]map[string]*time.Time // userID -> hash -> usedAt
}

func (f *fakeRecovery) Replace(_ context.Context, userID uint64, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make(map[string]*time.Time, len(hashes))
	for _, h := range hashes {
		batch[h] = nil
	}
	f.hashes[userID] = batch
	return nil
}

func (f *fakeRecovery) DeleteAll(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hashes, userID)
	return nil
}

func (f *fakeRecovery) Consume(_ context.Context, userID uint64, codeHash string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := f.hashes[userID]
	used, ok := batch[codeHash]
	if !ok || used != nil {
		return false, nil
	}
	batch[codeHash] = &at
	return true, nil
}

func (f *fakeRecovery) Status(_ context.Context, userID uint64) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total, remaining := 0, 0
	for _, used := range f.hashes[userID] {
		total++
		if used == nil {
			remaining++
		}
	}
	return total, remaining, nil
}

type fakeSessionControl struct {
	mu        sync.Mutex
	revokedAs string
	kept      string
	steppedUp []string
}

func (f *fakeSessionControl) RevokeAllSessions(_ context.Context, _ uint64, keep, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedAs = reason
	f.kept = keep
	return nil
}

func (f *fakeSessionControl) MarkStepUp(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steppedUp = append(f.steppedUp, sessionID)
	return nil
}

// ----- harness -----

type harness struct {
	svc      *Service
	users    *fakeUsers
	recovery *fakeRecovery
	sessions *fakeSessionControl
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:    &fakeUsers{users: map[uint64]model.User{}},
		recovery: &fakeRecovery{hashes: map[uint64]map[string]*time.Time{}},
		sessions: &fakeSessionControl{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.users.users[1] = model.User{ID: 1, Email: "ada@example.com", IsActive: true}
	h.svc = NewService(Config{Issuer: "MintCRM", Skew: 1, SecretKey: "app-secret"},
		h.users, h.recovery, h.sessions).WithClock(func() time.Time { return h.now })
	return h
}

// enroll runs setup+enable and returns the current user state, the raw
// secret and the plaintext recovery codes.
func (h *harness) enroll(t *testing.T) (model.User, []byte, []string) {
	t.Helper()
	ctx := context.Background()
	b32, _, err := h.svc.Setup(ctx, h.users.users[1])
	require.NoError(t, err)
	secret, err := totp.DecodeSecret(b32)
	require.NoError(t, err)

	u, _ := h.users.GetByID(ctx, 1)
	codes, err := h.svc.Enable(ctx, u, "sess-1", totp.CodeAt(secret, h.now))
	require.NoError(t, err)

	u, _ = h.users.GetByID(ctx, 1)
	return u, secret, codes
}

// ----- tests -----

func TestSetupProducesDecodableSecret(t *testing.T) {
	h := newHarness(t)
	b32, uri, err := h.svc.Setup(context.Background(), h.users.users[1])
	require.NoError(t, err)
	require.Contains(t, uri, "otpauth://totp/")
	require.Contains(t, uri, "MintCRM")

	_, err = totp.DecodeSecret(b32)
	require.NoError(t, err)

	// The stored secret is encrypted, never the base32 plaintext.
	u, _ := h.users.GetByID(context.Background(), 1)
	require.NotEmpty(t, u.TOTPSecret)
	require.NotEqual(t, b32, u.TOTPSecret)
	require.False(t, u.TOTPEnabled)
}

func TestEnableRequiresSetupAndValidCode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, _ := h.users.GetByID(ctx, 1)
	_, err := h.svc.Enable(ctx, u, "sess-1", "123456")
	require.ErrorIs(t, err, ErrNotPending)

	_, _, err = h.svc.Setup(ctx, u)
	require.NoError(t, err)
	u, _ = h.users.GetByID(ctx, 1)
	_, err = h.svc.Enable(ctx, u, "sess-1", "000000")
	require.ErrorIs(t, err, ErrInvalidCode)

	u, _ = h.users.GetByID(ctx, 1)
	require.False(t, u.TOTPEnabled)
}

func TestEnableRevokesOtherSessionsAndStepsUp(t *testing.T) {
	h := newHarness(t)
	u, _, codes := h.enroll(t)

	require.True(t, u.TOTPEnabled)
	require.Len(t, codes, totp.DefaultRecoveryCodes)
	require.Equal(t, session.ReasonTwoFactorEnabled, h.sessions.revokedAs)
	require.Equal(t, "sess-1", h.sessions.kept)
	require.Contains(t, h.sessions.steppedUp, "sess-1")
}

func TestSetupAfterEnableIsRejected(t *testing.T) {
	h := newHarness(t)
	u, _, _ := h.enroll(t)

	_, _, err := h.svc.Setup(context.Background(), u)
	require.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestVerifyCodeRatchetBlocksReplay(t *testing.T) {
	h := newHarness(t)
	u, secret, _ := h.enroll(t)
	ctx := context.Background()

	// The enrollment consumed the current step; the same code replayed is
	// rejected even though it is still within the time window.
	code := totp.CodeAt(secret, h.now)
	require.ErrorIs(t, h.svc.VerifyCode(ctx, u, code), ErrInvalidCode)

	// The next step's code works, once.
	h.now = h.now.Add(totp.Period * time.Second)
	u, _ = h.users.GetByID(ctx, 1)
	next := totp.CodeAt(secret, h.now)
	require.NoError(t, h.svc.VerifyCode(ctx, u, next))

	u, _ = h.users.GetByID(ctx, 1)
	require.ErrorIs(t, h.svc.VerifyCode(ctx, u, next), ErrInvalidCode)
}

func TestVerifyCodeAcceptsRecoveryOnce(t *testing.T) {
	h := newHarness(t)
	u, _, codes := h.enroll(t)
	ctx := context.Background()

	require.NoError(t, h.svc.VerifyCode(ctx, u, codes[0]))

	// Spent codes behave exactly like wrong codes.
	require.ErrorIs(t, h.svc.VerifyCode(ctx, u, codes[0]), ErrInvalidCode)

	total, remaining, err := h.svc.RecoveryStatus(ctx, u)
	require.NoError(t, err)
	require.Equal(t, totp.DefaultRecoveryCodes, total)
	require.Equal(t, totp.DefaultRecoveryCodes-1, remaining)
}

func TestStepUpIsNoopWithoutTOTP(t *testing.T) {
	h := newHarness(t)
	u, _ := h.users.GetByID(context.Background(), 1)

	require.NoError(t, h.svc.StepUp(context.Background(), u, "sess-1", "whatever"))
	require.Empty(t, h.sessions.steppedUp)
}

func TestStepUpMarksSession(t *testing.T) {
	h := newHarness(t)
	u, secret, _ := h.enroll(t)

	h.now = h.now.Add(totp.Period * time.Second)
	u, _ = h.users.GetByID(context.Background(), 1)
	require.NoError(t, h.svc.StepUp(context.Background(), u, "sess-2", totp.CodeAt(secret, h.now)))
	require.Contains(t, h.sessions.steppedUp, "sess-2")
}

func TestDisableClearsState(t *testing.T) {
	h := newHarness(t)
	u, secret, _ := h.enroll(t)
	ctx := context.Background()

	h.now = h.now.Add(totp.Period * time.Second)
	u, _ = h.users.GetByID(ctx, 1)
	require.NoError(t, h.svc.Disable(ctx, u, totp.CodeAt(secret, h.now)))

	u, _ = h.users.GetByID(ctx, 1)
	require.False(t, u.TOTPEnabled)
	require.Empty(t, u.TOTPSecret)

	total, _, err := h.svc.RecoveryStatus(ctx, u)
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestRegenerateRequiresTOTPNotRecovery(t *testing.T) {
	h := newHarness(t)
	u, secret, codes := h.enroll(t)
	ctx := context.Background()

	// A recovery code is not enough to mint fresh recovery codes.
	_, err := h.svc.RegenerateRecoveryCodes(ctx, u, codes[0])
	require.ErrorIs(t, err, ErrInvalidCode)

	h.now = h.now.Add(totp.Period * time.Second)
	u, _ = h.users.GetByID(ctx, 1)
	fresh, err := h.svc.RegenerateRecoveryCodes(ctx, u, totp.CodeAt(secret, h.now))
	require.NoError(t, err)
	require.Len(t, fresh, totp.DefaultRecoveryCodes)
	require.NotEqual(t, codes, fresh)

	// The old batch is void.
	u, _ = h.users.GetByID(ctx, 1)
	require.ErrorIs(t, h.svc.VerifyCode(ctx, u, codes[1]), ErrInvalidCode)
}

func TestStatusFor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, _ := h.users.GetByID(ctx, 1)
	require.Equal(t, Status{}, h.svc.StatusFor(u))

	_, _, err := h.svc.Setup(ctx, u)
	require.NoError(t, err)
	u, _ = h.users.GetByID(ctx, 1)
	require.True(t, h.svc.StatusFor(u).Pending)

	u, _, _ = h.enroll(t)
	st := h.svc.StatusFor(u)
	require.True(t, st.Enabled)
	require.False(t, st.Pending)
	require.NotNil(t, st.ConfirmedAt)
}
