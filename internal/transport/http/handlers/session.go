package http_handlers

import (
	"context"
	"net/http"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	pkgctx "github.com/baechuer/magiclink/services/signin-service/internal/pkg/context"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/dto"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/response"
)

// ProfileService backs the session-gated endpoints.
type ProfileService interface {
	Me(ctx context.Context, userID string) (domain.Profile, error)
	SelectRole(ctx context.Context, userID, role string) (domain.Profile, error)
}

type LogoutAuditor interface {
	Logout(ctx context.Context, userID string)
}

type SessionHandler struct {
	svc    ProfileService
	cookie CookieWriter
	audit  LogoutAuditor
}

func NewSessionHandler(svc ProfileService, cookie CookieWriter, audit LogoutAuditor) *SessionHandler {
	return &SessionHandler{svc: svc, cookie: cookie, audit: audit}
}

// Me handles GET /auth/v1/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := pkgctx.GetSession(r.Context())
	if !ok {
		response.WriteError(w, r, domain.ErrUnauthenticated())
		return
	}

	p, err := h.svc.Me(r.Context(), sess.UserID)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.NewProfileResponse(p))
}

// SelectRole handles POST /auth/v1/me/role
func (h *SessionHandler) SelectRole(w http.ResponseWriter, r *http.Request) {
	sess, ok := pkgctx.GetSession(r.Context())
	if !ok {
		response.WriteError(w, r, domain.ErrUnauthenticated())
		return
	}

	var req dto.SelectRoleRequest
	if err := response.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	p, err := h.svc.SelectRole(r.Context(), sess.UserID, req.Role)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, dto.NewProfileResponse(p))
}

// Logout handles POST /auth/v1/logout. It always clears the cookie.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.Clear(w)
	if sess, ok := pkgctx.GetSession(r.Context()); ok && h.audit != nil {
		h.audit.Logout(r.Context(), sess.UserID)
	}
	response.NoContent(w)
}
