package middleware

import (
	"net/http"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	pkgctx "github.com/baechuer/magiclink/services/signin-service/internal/pkg/context"
)

type WriteErrFunc func(http.ResponseWriter, *http.Request, error)

// SessionDecoder verifies a raw cookie value.
type SessionDecoder interface {
	Decode(value string) (domain.Session, bool)
}

// CookieReader extracts the raw session cookie value.
type CookieReader interface {
	Read(r *http.Request) (string, bool)
}

// Session attaches a verified session to the request context when the
// cookie is present and valid. It never rejects a request.
func Session(cookies CookieReader, decoder SessionDecoder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := cookies.Read(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			sess, ok := decoder.Decode(raw)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(pkgctx.WithSession(r.Context(), sess)))
		})
	}
}

// RequireSession rejects requests without a verified session.
func RequireSession(writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := pkgctx.GetSession(r.Context()); !ok {
				writeErr(w, r, domain.ErrUnauthenticated())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
