package token // package token implements the shared symmetric token codec

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// Type discriminates what a token may be used for.  Every token carries
// its type in the "typ" claim and decoding requires an exact match, so a
// token minted for one purpose can never be replayed as another.
type Type string

// The token types issued by this service.  Challenge, invite, reset and
// verify tokens are stateless: they are never stored server-side and are
// validated purely by signature and expiry.
const (
	TypeAccess    Type = "access"
	TypeRefresh   Type = "refresh"
	TypeChallenge Type = "challenge-2fa"
	TypeInvite    Type = "invite"
	TypeReset     Type = "reset"
	TypeVerify    Type = "verify"
)

// ErrInvalid is returned for every decode failure: bad signature, wrong
// algorithm, malformed payload, expiry, wrong type, or missing required
// claims.  Callers must treat all of these identically (fail closed), so
// the codec deliberately does not distinguish them.
var ErrInvalid = errors.New("token invalid")

// Claims is the decoded, validated content of a token.  Which fields are
// populated depends on the type: access tokens carry UserID and SessionID,
// refresh tokens additionally carry JTI, challenge tokens carry UserID,
// and invite/reset/verify tokens carry Email (plus Role for invites).
type Claims struct {
	Type      Type
	UserID    uint64
	SessionID string
	JTI       string
	Email     string
	Role      string
	OrgID     uint64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// payload is the wire shape.  Parsing into a concrete struct (instead of
// poking at a claims map) turns any shape problem into a decode error at
// the boundary rather than a type assertion failure later.
type payload struct {
	Typ   string `json:"typ"`
	SID   string `json:"sid,omitempty"`
	Email string `json:"eml,omitempty"`
	Role  string `json:"rol,omitempty"`
	Org   uint64 `json:"oid,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies all token types with one HS256 secret.  There
// is no key rotation or multi-issuer support; the single shared secret is
// a deliberate simplicity trade-off.
type Codec struct {
	secret []byte
}

// NewCodec returns a Codec signing with the given shared secret.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode signs the given claims with the requested lifetime.  The issued-at
// and expiry timestamps are always set by the codec, never by the caller.
func (c *Codec) Encode(cl Claims, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	p := payload{
		Typ:   string(cl.Type),
		SID:   cl.SessionID,
		Email: cl.Email,
		Role:  cl.Role,
		Org:   cl.OrgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        cl.JTI,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if cl.UserID != 0 {
		p.Subject = strconv.FormatUint(cl.UserID, 10)
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, p)
	return t.SignedString(c.secret)
}

// Decode parses and verifies a token of the expected type.  Any failure
// yields ErrInvalid: wrong signature, non-HMAC algorithm, expiry, type
// mismatch, or a missing claim the type requires.
func (c *Codec) Decode(raw string, want Type) (Claims, error) {
	var p payload
	tok, err := jwt.ParseWithClaims(raw, &p, func(t *jwt.Token) (interface{}, error) {
		// Reject any token not signed with our HMAC family before the
		// signature is even checked.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return c.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuedAt())
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalid
	}
	if p.Typ == "" || Type(p.Typ) != want {
		return Claims{}, ErrInvalid
	}

	cl := Claims{
		Type:      Type(p.Typ),
		SessionID: p.SID,
		JTI:       p.ID,
		Email:     p.Email,
		Role:      p.Role,
		OrgID:     p.Org,
	}
	if p.IssuedAt != nil {
		cl.IssuedAt = p.IssuedAt.Time
	}
	if p.ExpiresAt != nil {
		cl.ExpiresAt = p.ExpiresAt.Time
	}
	if p.Subject != "" {
		uid, err := strconv.ParseUint(p.Subject, 10, 64)
		if err != nil {
			return Claims{}, ErrInvalid
		}
		cl.UserID = uid
	}

	// Per-type required claims.  A structurally valid token that lacks
	// what its type needs is as invalid as a forged one.
	switch want {
	case TypeAccess:
		if cl.UserID == 0 || cl.SessionID == "" {
			return Claims{}, ErrInvalid
		}
	case TypeRefresh:
		if cl.UserID == 0 || cl.SessionID == "" || cl.JTI == "" {
			return Claims{}, ErrInvalid
		}
	case TypeChallenge:
		if cl.UserID == 0 {
			return Claims{}, ErrInvalid
		}
	case TypeInvite, TypeReset, TypeVerify:
		if cl.Email == "" {
			return Claims{}, ErrInvalid
		}
	}
	return cl, nil
}
