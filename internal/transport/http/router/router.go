package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/middleware"
)

type HealthHandler interface {
	Healthz(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

type OAuthHandler interface {
	Start(w http.ResponseWriter, r *http.Request)
	Callback(w http.ResponseWriter, r *http.Request)
}

type SessionHandler interface {
	Me(w http.ResponseWriter, r *http.Request)
	SelectRole(w http.ResponseWriter, r *http.Request)
	Logout(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Health  HealthHandler
	OAuth   OAuthHandler
	Session SessionHandler

	// SessionMW reads the cookie; RequireSessionMW rejects anonymous callers.
	SessionMW        func(http.Handler) http.Handler
	RequireSessionMW func(http.Handler) http.Handler

	// Optional
	RLOAuth func(http.Handler) http.Handler
	Metrics http.Handler
}

func New(deps Deps) (http.Handler, error) {
	if deps.Health == nil {
		return nil, fmt.Errorf("nil Health handler")
	}
	if deps.OAuth == nil {
		return nil, fmt.Errorf("nil OAuth handler")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("nil Session handler")
	}
	if deps.SessionMW == nil {
		return nil, fmt.Errorf("nil Session middleware")
	}
	if deps.RequireSessionMW == nil {
		return nil, fmt.Errorf("nil RequireSession middleware")
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics)

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Method(http.MethodGet, "/metrics", deps.Metrics)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Use(deps.SessionMW)

		// --- OAuth sign-in ---
		r.Route("/oauth", func(r chi.Router) {
			if deps.RLOAuth != nil {
				r.Use(deps.RLOAuth)
			}
			r.Get("/start", deps.OAuth.Start)
			r.Get("/callback", deps.OAuth.Callback)
		})

		// --- Session ---
		r.Post("/logout", deps.Session.Logout)
		r.Group(func(r chi.Router) {
			r.Use(deps.RequireSessionMW)
			r.Get("/me", deps.Session.Me)
			r.Post("/me/role", deps.Session.SelectRole)
		})
	})

	return r, nil
}
