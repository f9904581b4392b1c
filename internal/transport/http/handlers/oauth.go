package http_handlers

import (
	"context"
	"net/http"

	"github.com/baechuer/magiclink/services/signin-service/internal/application/signin"
	"github.com/baechuer/magiclink/services/signin-service/internal/logger"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/middleware"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/response"
)

// SigninFlow is the part of the sign-in service the OAuth endpoints drive.
type SigninFlow interface {
	Start(ctx context.Context) (*signin.StartResult, error)
	Callback(ctx context.Context, p signin.CallbackParams) (*signin.CallbackResult, *signin.Failure)
	ErrorRedirectURL(f *signin.Failure) string
}

// CookieWriter sets and clears the session cookie.
type CookieWriter interface {
	Set(w http.ResponseWriter, value string)
	Clear(w http.ResponseWriter)
}

const callbackPath = "/auth/v1/oauth/callback"

// OAuthHandler handles OAuth endpoints
type OAuthHandler struct {
	svc    SigninFlow
	cookie CookieWriter
}

func NewOAuthHandler(svc SigninFlow, cookie CookieWriter) *OAuthHandler {
	return &OAuthHandler{svc: svc, cookie: cookie}
}

// Start initiates the flow by redirecting to the provider.
// GET /auth/v1/oauth/start
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Start(r.Context())
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("oauth start failed")
		response.Redirect(w, r, h.svc.ErrorRedirectURL(signin.Unexpected(err)))
		return
	}
	response.Redirect(w, r, res.AuthURL)
}

// Callback completes the flow. Every outcome is a redirect to the app.
// GET /auth/v1/oauth/callback?code=...&state=...
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, fail := h.svc.Callback(r.Context(), signin.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})

	log := logger.Ctx(r.Context())
	if fail != nil {
		evt := log.Warn()
		if fail.Code == signin.CodeUnexpectedError {
			evt = log.Error()
		}
		evt.Err(fail.Cause).
			Str("code", fail.Code).
			Str("details", fail.Details).
			Msg("oauth callback failed")

		middleware.SigninCallbacksTotal.WithLabelValues(callbackResultLabel(fail.Code)).Inc()
		response.Redirect(w, r, h.svc.ErrorRedirectURL(fail))
		return
	}

	if res.PublishErr != nil {
		middleware.EventPublishFailuresTotal.Inc()
		log.Warn().Err(res.PublishErr).Str("user_id", res.Profile.ID).Msg("sign-in event not published")
	}

	h.cookie.Set(w, res.CookieValue)
	middleware.SigninCallbacksTotal.WithLabelValues("success").Inc()
	response.Redirect(w, r, res.RedirectURL)
}

// RateLimited answers requests over the sign-in rate limit. The browser is
// mid-redirect here, so it gets the error page rather than a JSON body.
func (h *OAuthHandler) RateLimited(w http.ResponseWriter, r *http.Request) {
	logger.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("oauth rate limited")
	if r.URL.Path == callbackPath {
		middleware.SigninCallbacksTotal.WithLabelValues(signin.CodeRateLimited).Inc()
	}
	response.Redirect(w, r, h.svc.ErrorRedirectURL(signin.RateLimited()))
}

// callbackResultLabel keeps provider-forwarded codes out of metric labels.
func callbackResultLabel(code string) string {
	if signin.IsKnownCode(code) {
		return code
	}
	return "provider_error"
}
