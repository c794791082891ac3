package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultRecoveryCodes is how many codes a batch contains.
const DefaultRecoveryCodes = 10

// Recovery code alphabet: upper-case letters and digits minus the
// characters users confuse when reading codes aloud (0/O, 1/I/L).
const recoveryAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateRecoveryCodes returns n fresh plaintext recovery codes in the
// form XXXXX-XXXXX.  The plaintext is shown to the user exactly once;
// only HashRecoveryCode digests are persisted.
func GenerateRecoveryCodes(n int) ([]string, error) {
	if n <= 0 {
		n = DefaultRecoveryCodes
	}
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, 10)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		b := make([]byte, 0, 11)
		for j, c := range buf {
			if j == 5 {
				b = append(b, '-')
			}
			b = append(b, recoveryAlphabet[int(c)%len(recoveryAlphabet)])
		}
		codes = append(codes, string(b))
	}
	return codes, nil
}

// NormalizeRecoveryCode strips separators and whitespace and upper-cases
// the input so users can paste codes in any of the shapes we print them.
func NormalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// HashRecoveryCode returns the keyed HMAC-SHA256 hex digest of a
// normalized recovery code.  Keying with the application secret means a
// leaked table alone cannot be brute-forced offline against the short
// code space.
func HashRecoveryCode(key, code string) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(NormalizeRecoveryCode(code)))
	return hex.EncodeToString(mac.Sum(nil))
}
