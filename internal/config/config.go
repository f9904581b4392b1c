package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const minSessionSecretLen = 32

type Config struct {
	// App
	Env string `env:"ENV" envDefault:"dev"` // dev / staging / prod

	// HTTP
	HTTPAddr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"1m"`

	// Infrastructure
	DBAddr         string `env:"DB_ADDR,required,notEmpty"`
	DBDebug        bool   `env:"DB_DEBUG" envDefault:"false"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RabbitURL      string `env:"RABBIT_URL"`
	RabbitExchange string `env:"RABBIT_EXCHANGE" envDefault:"magiclink.events"`

	// OAuth provider
	OAuthClientID     string        `env:"OAUTH_CLIENT_ID,required,notEmpty"`
	OAuthClientSecret string        `env:"OAUTH_CLIENT_SECRET,required,notEmpty"`
	OAuthRedirectURL  string        `env:"OAUTH_REDIRECT_URL,required,notEmpty"`
	OAuthAuthURL      string        `env:"OAUTH_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	OAuthTokenURL     string        `env:"OAUTH_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	OAuthUserInfoURL  string        `env:"OAUTH_USERINFO_URL" envDefault:"https://www.googleapis.com/oauth2/v2/userinfo"`
	OAuthScopes       []string      `env:"OAUTH_SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
	OAuthStateTTL     time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	OAuthHTTPTimeout  time.Duration `env:"OAUTH_HTTP_TIMEOUT" envDefault:"10s"`

	// Session cookie
	SessionSecret     string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SessionCookieName string        `env:"SESSION_COOKIE_NAME" envDefault:"magiclink-authenticated"`

	// Frontend origin the callback redirects back to.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`

	// Rate limit for /auth/v1/oauth/*
	RLLimit  int           `env:"RL_LIMIT" envDefault:"30"`
	RLWindow time.Duration `env:"RL_WINDOW" envDefault:"1m"`
}

// IsDev reports whether the service runs in the dev environment.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// Load reads .env (if present) and the process environment, then validates.
// It fails fast: the service must not start half-configured.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.OAuthStateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive")
	}
	if c.OAuthHTTPTimeout <= 0 {
		return fmt.Errorf("OAUTH_HTTP_TIMEOUT must be positive")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}
	if c.RLLimit <= 0 || c.RLWindow <= 0 {
		return fmt.Errorf("RL_LIMIT and RL_WINDOW must be positive")
	}

	for key, raw := range map[string]string{
		"OAUTH_REDIRECT_URL": c.OAuthRedirectURL,
		"OAUTH_AUTH_URL":     c.OAuthAuthURL,
		"OAUTH_TOKEN_URL":    c.OAuthTokenURL,
		"OAUTH_USERINFO_URL": c.OAuthUserInfoURL,
		"APP_BASE_URL":       c.AppBaseURL,
	} {
		if err := checkAbsURL(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	c.AppBaseURL = strings.TrimRight(c.AppBaseURL, "/")

	scopes := c.OAuthScopes[:0]
	for _, s := range c.OAuthScopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return fmt.Errorf("OAUTH_SCOPES must not be empty")
	}
	c.OAuthScopes = scopes

	// outside dev the state must survive restarts and be shared by replicas
	if !c.IsDev() && c.RedisAddr == "" {
		return fmt.Errorf("missing required env var: REDIS_ADDR")
	}
	if !c.IsDev() && c.RabbitURL == "" {
		return fmt.Errorf("missing required env var: RABBIT_URL")
	}
	return nil
}

func checkAbsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}
