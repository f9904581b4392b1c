package security

import "github.com/golang-jwt/jwt/v5"

func jwtHS256Sign(payload string, key []byte) ([]byte, error) {
	return jwt.SigningMethodHS256.Sign(payload, key)
}
