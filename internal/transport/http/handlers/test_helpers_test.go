package http_handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	pkgctx "github.com/baechuer/magiclink/services/signin-service/internal/pkg/context"
)

// mustJSONBody marshals v to JSON and returns an io.Reader for request body.
func mustJSONBody(t *testing.T, v any) io.Reader {
	t.Helper()

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	return bytes.NewReader(b)
}

// mustReadData decodes a {"data": ...} envelope into out.
func mustReadData(t *testing.T, r io.Reader, out any) {
	t.Helper()

	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	wrapped := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(raw, &wrapped); err != nil || len(wrapped.Data) == 0 {
		t.Fatalf("decode json failed; body=%s", string(raw))
	}
	if err := json.Unmarshal(wrapped.Data, out); err != nil {
		t.Fatalf("decode data failed; body=%s err=%v", string(raw), err)
	}
}

// mustErrorCode reads {"error":{"code":...}}.
func mustErrorCode(t *testing.T, r io.Reader) string {
	t.Helper()

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

// readCookie finds cookie by name from response headers.
func readCookie(res *http.Response, name string) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// withSession injects a verified session into the request context.
func withSession(req *http.Request, userID string) *http.Request {
	ctx := pkgctx.WithSession(req.Context(), domain.Session{UserID: userID, Email: "a@b.com", Authenticated: true})
	return req.WithContext(ctx)
}

type fakeCookie struct {
	set     string
	cleared bool
}

func (c *fakeCookie) Set(w http.ResponseWriter, value string) {
	c.set = value
	http.SetCookie(w, &http.Cookie{Name: "sess", Value: value, Path: "/"})
}

func (c *fakeCookie) Clear(w http.ResponseWriter) {
	c.cleared = true
	http.SetCookie(w, &http.Cookie{Name: "sess", Value: "", Path: "/", MaxAge: -1})
}

type fakeAuditor struct {
	logouts []string
}

func (a *fakeAuditor) Logout(_ context.Context, userID string) {
	a.logouts = append(a.logouts, userID)
}
