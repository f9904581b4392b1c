package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/baechuer/magiclink/services/signin-service/internal/application/signin"
	"github.com/baechuer/magiclink/services/signin-service/internal/audit"
	"github.com/baechuer/magiclink/services/signin-service/internal/config"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/db/postgres"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/memory"
	rabbitmq_pub "github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/oauth"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/redis"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/security"
	"github.com/baechuer/magiclink/services/signin-service/internal/logger"
	http_handlers "github.com/baechuer/magiclink/services/signin-service/internal/transport/http/handlers"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/middleware"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/response"
	"github.com/baechuer/magiclink/services/signin-service/internal/transport/http/router"
)

/*
========================
 Public entry (prod)
========================
*/

func NewServer() (*http.Server, func(), error) {
	return newServer(defaultDeps())
}

// NewServerWithDeps allows injecting dependencies for testing
func NewServerWithDeps(deps Deps) (*http.Server, func(), error) {
	return newServer(deps)
}

/*
========================
 Dependency injection
========================
*/

type Deps struct {
	LoadConfig func() (*config.Config, error)

	NewDB func(addr string, debug bool) (DBCloser, error)

	// Migrate runs schema migrations; only called in dev.
	Migrate func(ctx context.Context, db *sql.DB) error

	NewRedis func(addr, password string, db int) RedisClient

	NewPublisher func(rabbitURL, exchange string) (Publisher, error)

	NewRouter func(router.Deps) (http.Handler, error)

	NewIdentityProvider func(cfg *config.Config) signin.IdentityProvider
}

type DBCloser interface {
	Close() error
}

type RedisClient interface {
	Ping(ctx context.Context) error
	Close() error
	OAuthStates() signin.StateStore
}

type Publisher interface {
	signin.EventPublisher
}

/*
========================
 Core bootstrap logic
========================
*/

func newServer(deps Deps) (*http.Server, func(), error) {
	// 0) config
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 1) db
	db, err := deps.NewDB(cfg.DBAddr, cfg.DBDebug)
	if err != nil {
		return nil, nil, err
	}

	cleanupFns := []func(){
		func() { _ = db.Close() },
	}

	sqlDB, ok := db.(*sql.DB)
	if !ok {
		runCleanup(cleanupFns)
		return nil, nil, errors.New("bootstrap: NewDB did not return *sql.DB")
	}

	if cfg.IsDev() && deps.Migrate != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := deps.Migrate(ctx, sqlDB)
		cancel()
		if err != nil {
			runCleanup(cleanupFns)
			return nil, nil, err
		}
	}

	profileRepo := postgres.NewProfileRepo(sqlDB)

	// 2) oauth state store: redis, or memory in dev
	var stateStore signin.StateStore
	switch {
	case deps.NewRedis != nil && cfg.RedisAddr != "":
		c := deps.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.Ping(ctx)
		cancel()

		switch {
		case err == nil:
			logger.Logger.Info().Msg("redis connected")
			cleanupFns = append(cleanupFns, func() { _ = c.Close() })
			stateStore = c.OAuthStates()
		case cfg.IsDev():
			logger.Logger.Warn().Err(err).Msg("redis unavailable; using in-memory oauth state")
			_ = c.Close()
		default:
			_ = c.Close()
			runCleanup(cleanupFns)
			return nil, nil, err
		}
	case !cfg.IsDev():
		runCleanup(cleanupFns)
		return nil, nil, errors.New("bootstrap: REDIS_ADDR is required outside dev")
	}
	if stateStore == nil {
		stateStore = memory.NewOAuthStateStore()
	}

	// 3) publisher
	var pub Publisher
	if cfg.RabbitURL != "" {
		pub, err = deps.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	} else {
		err = errors.New("RABBIT_URL not set")
	}
	if err != nil {
		if cfg.IsDev() {
			logger.Logger.Warn().Err(err).Msg("rabbitmq unavailable; using noop publisher")
			pub = memory.NewNoopPublisher()
		} else {
			runCleanup(cleanupFns)
			return nil, nil, err
		}
	}
	if c, ok := pub.(interface{ Close() error }); ok {
		cleanupFns = append(cleanupFns, func() { _ = c.Close() })
	}

	// 4) identity provider
	var idp signin.IdentityProvider
	if deps.NewIdentityProvider != nil {
		idp = deps.NewIdentityProvider(cfg)
	} else {
		idp = newOAuthClient(cfg)
	}

	// 5) session
	codec := security.NewSessionCodec(cfg.SessionSecret, cfg.SessionTTL)
	cookie := security.SessionCookie{
		Name:   cfg.SessionCookieName,
		TTL:    cfg.SessionTTL,
		Secure: !cfg.IsDev(),
	}

	// 6) service
	auditLog := audit.New(logger.Logger)
	svc := signin.NewService(
		stateStore,
		profileRepo,
		idp,
		pub,
		codec,
		signin.Config{
			StateTTL:   cfg.OAuthStateTTL,
			AppBaseURL: cfg.AppBaseURL,
		},
	).WithAudit(auditLog.Record)

	// 7) handlers + middleware
	oauthH := http_handlers.NewOAuthHandler(svc, cookie)
	mux, err := deps.NewRouter(router.Deps{
		Health:           http_handlers.NewHealthHandler(sqlDB),
		OAuth:            oauthH,
		Session:          http_handlers.NewSessionHandler(svc, cookie, auditLog),
		SessionMW:        middleware.Session(cookie, codec),
		RequireSessionMW: middleware.RequireSession(response.WriteError),
		RLOAuth:          middleware.RateLimitByIP(cfg.RLLimit, cfg.RLWindow, oauthH.RateLimited),
	})
	if err != nil {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	// 8) server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	cleanup := func() {
		runCleanup(cleanupFns)
	}

	return srv, cleanup, nil
}

func newOAuthClient(cfg *config.Config) *oauth.Client {
	return oauth.NewClient(oauth.ProviderConfig{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		AuthURL:      cfg.OAuthAuthURL,
		TokenURL:     cfg.OAuthTokenURL,
		UserInfoURL:  cfg.OAuthUserInfoURL,
		Scopes:       cfg.OAuthScopes,
		Timeout:      cfg.OAuthHTTPTimeout,
	})
}

/*
========================
 Default deps (prod)
========================
*/

func defaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		NewDB: func(addr string, debug bool) (DBCloser, error) {
			return config.NewDB(addr, debug)
		},
		Migrate: postgres.Migrate,
		NewRedis: func(addr, password string, db int) RedisClient {
			return redis.New(addr, password, db)
		},
		NewPublisher: func(url, exchange string) (Publisher, error) {
			p, err := rabbitmq_pub.NewPublisher(url, exchange)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		NewRouter: router.New,
	}
}

/*
========================
 helpers
========================
*/

func runCleanup(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
