package security

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

// clock skew tolerated on issuedAt
const maxFutureSkew = time.Minute

// SessionCodec turns a session into a signed cookie value and back.
// Value layout: base64url(json) "." base64url(HMAC-SHA256(base64url(json))).
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	return &SessionCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *SessionCodec) Encode(s domain.Session) (string, error) {
	if s.UserID == "" || !s.Authenticated {
		return "", errors.New("session: refusing to encode unauthenticated session")
	}
	if s.IssuedAt.IsZero() {
		s.IssuedAt = c.now().UTC()
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)

	sig, err := jwt.SigningMethodHS256.Sign(payload, c.secret)
	if err != nil {
		return "", domain.ErrInternal(err)
	}
	return payload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Decode verifies and parses a cookie value. Any failure (bad shape, bad
// signature, bad JSON, expired) yields ok=false.
func (c *SessionCodec) Decode(value string) (domain.Session, bool) {
	payload, sigPart, found := strings.Cut(strings.TrimSpace(value), ".")
	if !found || payload == "" || sigPart == "" || strings.Contains(sigPart, ".") {
		return domain.Session{}, false
	}

	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return domain.Session{}, false
	}
	if err := jwt.SigningMethodHS256.Verify(payload, sig, c.secret); err != nil {
		return domain.Session{}, false
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return domain.Session{}, false
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.Session{}, false
	}
	if !s.Authenticated || s.UserID == "" || s.IssuedAt.IsZero() {
		return domain.Session{}, false
	}

	now := c.now()
	if s.IssuedAt.After(now.Add(maxFutureSkew)) {
		return domain.Session{}, false
	}
	if c.ttl > 0 && now.Sub(s.IssuedAt) > c.ttl {
		return domain.Session{}, false
	}
	return s, true
}
