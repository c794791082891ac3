package model

import "time"

// User represents an application user record as stored in the
// `users` table. Each field corresponds to a column. The json tags
// are omitted here because these structs are used internally by the
// repository layer; handlers define separate response types with
// appropriate JSON tags.
//
// The TOTP* fields drive the per-user two-factor state machine:
// a user with a secret but no confirmation timestamp is "pending",
// a user with TOTPEnabled set is "enabled", and everything cleared
// means "disabled".
//
// Fields:
//  ID              – primary key identifier of the user.
//  Email           – unique, normalized-lowercase email address.
//  PasswordHash    – bcrypt hashed password.
//  Role            – role name (user, editor or admin).
//  OrgID           – owning organization.
//  TOTPEnabled     – whether two-factor auth is confirmed and active.
//  TOTPSecret      – AES-GCM encrypted TOTP secret (empty when disabled).
//  TOTPConfirmedAt – when the pending secret was confirmed (null while pending).
//  TOTPLastStep    – last consumed 30-second step; the replay ratchet.
//  IsActive        – whether the account is active.
//  CreatedAt       – timestamp of creation.
//  UpdatedAt       – timestamp of last update.
type User struct {
	ID              uint64     // users.id
	Email           string     // users.email
	PasswordHash    string     // users.password_hash
	Role            string     // users.role
	OrgID           uint64     // users.org_id
	TOTPEnabled     bool       // users.totp_enabled
	TOTPSecret      string     // users.totp_secret (encrypted, base64)
	TOTPConfirmedAt *time.Time // users.totp_confirmed_at (nullable)
	TOTPLastStep    int64      // users.totp_last_step
	IsActive        bool       // users.is_active
	CreatedAt       time.Time  // users.created_at
	UpdatedAt       time.Time  // users.updated_at
}

// Roles accepted in users.role.
const (
	RoleUser   = "user"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Session models one authenticated device/browser in the `sessions`
// table. A session is never hard-deleted; revoked rows are retained
// for audit together with the reason that ended them.
//
// Fields:
//  ID            – opaque UUID primary key, embedded in issued tokens.
//  UserID        – owner of the session.
//  IP            – client address captured at creation.
//  UserAgent     – client user agent captured at creation.
//  RevokedAt     – when the session was revoked (null while active).
//  RevokedReason – why the session was revoked (empty while active).
//  LastSeenAt    – best-effort heartbeat, bumped at most every 5 minutes.
//  MFAVerifiedAt – last successful 2FA step-up on this session (nullable).
//  CreatedAt     – timestamp of creation.
//  UpdatedAt     – timestamp of last update.
type Session struct {
	ID            string     // sessions.id (UUID)
	UserID        uint64     // sessions.user_id
	IP            string     // sessions.ip
	UserAgent     string     // sessions.user_agent
	RevokedAt     *time.Time // sessions.revoked_at (nullable)
	RevokedReason string     // sessions.revoked_reason
	LastSeenAt    time.Time  // sessions.last_seen_at
	MFAVerifiedAt *time.Time // sessions.mfa_verified_at (nullable)
	CreatedAt     time.Time  // sessions.created_at
	UpdatedAt     time.Time  // sessions.updated_at
}

// Revoked reports whether the session is in its terminal state.
func (s Session) Revoked() bool { return s.RevokedAt != nil }

// RefreshToken models an entry in the `refresh_tokens` table: one row
// per issued refresh token. Rotation never deletes a row; the old row
// is revoked and linked to its successor through ReplacedByJTI so a
// second redemption of an already-rotated token can be recognized as
// theft.
//
// Fields:
//  ID            – primary key identifier.
//  SessionID     – owning session.
//  JTI           – unique token identifier carried inside the JWT.
//  IssuedAt      – when the token was issued.
//  ExpiresAt     – issuance time plus the configured refresh lifetime.
//  RevokedAt     – when the token was revoked (null while live).
//  ReplacedByJTI – JTI of the successor token (empty until rotated).
type RefreshToken struct {
	ID            uint64     // refresh_tokens.id
	SessionID     string     // refresh_tokens.session_id
	JTI           string     // refresh_tokens.jti
	IssuedAt      time.Time  // refresh_tokens.issued_at
	ExpiresAt     time.Time  // refresh_tokens.expires_at
	RevokedAt     *time.Time // refresh_tokens.revoked_at (nullable)
	ReplacedByJTI string     // refresh_tokens.replaced_by_jti (empty until rotated)
}

// RecoveryCode models a single-use 2FA recovery code in the
// `recovery_codes` table. Only a keyed hash of the code is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the code.
//  CodeHash  – HMAC-SHA256 hex digest of the normalized code.
//  UsedAt    – when the code was consumed (null while unused).
//  CreatedAt – timestamp of creation.
type RecoveryCode struct {
	ID        uint64     // recovery_codes.id
	UserID    uint64     // recovery_codes.user_id
	CodeHash  string     // recovery_codes.code_hash
	UsedAt    *time.Time // recovery_codes.used_at (nullable)
	CreatedAt time.Time  // recovery_codes.created_at
}
