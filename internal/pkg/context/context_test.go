package context

import (
	"context"
	"testing"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "rid-1")
	if got := GetRequestID(ctx); got != "rid-1" {
		t.Fatalf("expected rid-1, got %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	//nolint:staticcheck
	if got := GetRequestID(nil); got != "" {
		t.Fatalf("expected empty for nil ctx, got %q", got)
	}
}

func TestSession_OnlyAuthenticatedIsReturned(t *testing.T) {
	if _, ok := GetSession(context.Background()); ok {
		t.Fatalf("expected no session")
	}

	ctx := WithSession(context.Background(), domain.Session{UserID: "u1", Authenticated: false})
	if _, ok := GetSession(ctx); ok {
		t.Fatalf("unauthenticated session must not be returned")
	}

	ctx = WithSession(context.Background(), domain.Session{UserID: "u1", Email: "a@b.com", Authenticated: true})
	s, ok := GetSession(ctx)
	if !ok || s.UserID != "u1" {
		t.Fatalf("expected session u1, got %+v ok=%v", s, ok)
	}
}
