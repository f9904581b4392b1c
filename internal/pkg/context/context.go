// Package context holds the request-scoped values the HTTP layer hands to
// the application: the request id and the verified session.
package context

import (
	"context"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionKey
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns "" when the request was not tagged.
func GetRequestID(ctx context.Context) string {
	id, _ := value[string](ctx, requestIDKey)
	return id
}

// WithSession stores a verified session on the request context.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// GetSession returns the session only if it is authenticated and names a user.
func GetSession(ctx context.Context) (domain.Session, bool) {
	s, ok := value[domain.Session](ctx, sessionKey)
	if !ok || !s.Authenticated || s.UserID == "" {
		return domain.Session{}, false
	}
	return s, true
}

func value[T any](ctx context.Context, key ctxKey) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	if !ok {
		return zero, false
	}
	return v, true
}
