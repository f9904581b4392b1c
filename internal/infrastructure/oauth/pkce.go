package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const (
	// 32 random bytes = 256 bits, 43 chars of base64url.
	stateBytes    = 32
	verifierBytes = 32

	minVerifierLen = 43
	maxVerifierLen = 128
)

// GenerateState returns a random, URL-safe value for the OAuth state parameter.
func GenerateState() (string, error) {
	return randomURLSafe(stateBytes)
}

// GenerateCodeVerifier returns a PKCE code_verifier (RFC 7636 §4.1).
// base64url output only uses [A-Za-z0-9-_], a subset of the unreserved set.
func GenerateCodeVerifier() (string, error) {
	return randomURLSafe(verifierBytes)
}

// GenerateCodeChallenge computes the S256 challenge: BASE64URL(SHA256(verifier)), unpadded.
func GenerateCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// ValidCodeVerifier checks length and charset of a code_verifier.
func ValidCodeVerifier(v string) bool {
	if len(v) < minVerifierLen || len(v) > maxVerifierLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '-', c == '.', c == '_', c == '~':
		default:
			return false
		}
	}
	return true
}

func randomURLSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
