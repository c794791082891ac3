// Package queue defines message payloads exchanged over the message broker.
package queue

// Security event types published by the auth handlers.
const (
	EventLoginSuccess      = "login.success"
	EventLoginFailure      = "login.failure"
	EventLockout           = "login.lockout"
	EventTwoFactorFailed   = "2fa.failure"
	EventTwoFactorEnabled  = "2fa.enabled"
	EventTwoFactorDisabled = "2fa.disabled"
	EventRefreshReuse      = "refresh.reuse_detected"
	EventSessionRevoked    = "session.revoked"
	EventPasswordReset     = "password.reset"
	EventResetRequested    = "password.reset_requested"
)

// SecurityEvent is published for every security-relevant authentication
// event.  It carries enough information for downstream consumers to log,
// alert, or feed a SIEM without querying the primary database.  For
// reset-requested events the Detail field carries the reset token in
// place of outbound email delivery, which is out of scope here.
type SecurityEvent struct {
	Type      string `json:"type"`
	UserID    uint64 `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Detail    string `json:"detail,omitempty"`
	At        string `json:"at"`
}
