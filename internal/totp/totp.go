package totp // package totp implements RFC 6238 time-based one-time passwords

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Fixed parameters shared with every common authenticator app.  Period
// and digits are not configurable: authenticators default to 30s/6 and
// diverging silently breaks enrollment.
const (
	secretBytes = 20 // 160-bit secret per RFC 4226 recommendation
	Period      = 30 // seconds per step
	Digits      = 6  // code length
)

var errEmptySecret = errors.New("empty totp secret")

// GenerateSecret returns a fresh random secret and its base32 form as
// shown to the user during enrollment.
func GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, enc.EncodeToString(raw), nil
}

// DecodeSecret parses a base32 secret produced by GenerateSecret.
func DecodeSecret(secretBase32 string) ([]byte, error) {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
}

// ProvisionURI builds the otpauth:// URI encoded into the enrollment QR
// code.  The account label is the user's email; the issuer groups the
// entry in the authenticator app.
func ProvisionURI(issuer, account, secretBase32 string) string {
	label := url.PathEscape(issuer + ":" + account)
	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", fmt.Sprintf("%d", Period))
	v.Set("digits", fmt.Sprintf("%d", Digits))
	v.Set("algorithm", "SHA1")
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks a submitted code against the secret, accepting codes for
// the current step and up to skew steps on either side to absorb clock
// drift.  On a match it returns the matched step so the caller can apply
// the anti-replay ratchet: a code is only acceptable while its step is
// strictly greater than the last consumed one.  Comparison is constant
// time.
func Verify(secret []byte, code string, skew int, now time.Time) (bool, int64, error) {
	if len(secret) == 0 {
		return false, 0, errEmptySecret
	}
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != Digits || !allDigits(trimmed) {
		return false, 0, nil
	}

	base := now.Unix() / Period
	for offset := -skew; offset <= skew; offset++ {
		step := base + int64(offset)
		if step < 0 {
			continue
		}
		want := hotpCode(secret, step)
		if subtle.ConstantTimeCompare([]byte(want), []byte(trimmed)) == 1 {
			return true, step, nil
		}
	}
	return false, 0, nil
}

// CodeAt returns the code for an arbitrary time.  Used by enrollment
// tests and debugging tooling, never by the verification path directly.
func CodeAt(secret []byte, at time.Time) string {
	return hotpCode(secret, at.Unix()/Period)
}

// hotpCode derives a Digits-long decimal code from the secret and step
// using HMAC-SHA1 dynamic truncation (RFC 4226 §5.3).
func hotpCode(secret []byte, step int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(step))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < Digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", Digits, bin%mod)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
