package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

const (
	opTokenExchange = "token_exchange"
	opUserInfo      = "userinfo"

	// Provider bodies end up in logs and error details; keep them bounded.
	maxDetailLen   = 300
	maxBodyBytes   = 1 << 20
	defaultTimeout = 10 * time.Second
)

// ErrTimeout is returned when the provider does not answer within the client timeout.
var ErrTimeout = errors.New("oauth provider request timed out")

// ProviderError is a protocol-level failure reported by the identity provider:
// a non-2xx status, an OAuth error body, or a userinfo response without a usable email.
type ProviderError struct {
	Op          string // token_exchange | userinfo
	StatusCode  int
	Code        string // e.g. invalid_grant, missing_email
	Description string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "oauth %s failed", e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(": " + e.Code)
	}
	if e.Description != "" {
		b.WriteString(": " + e.Description)
	}
	return b.String()
}

// IsTokenExchange reports whether the failure came from the token endpoint.
func (e *ProviderError) IsTokenExchange() bool { return e.Op == opTokenExchange }

// IsUserInfo reports whether the failure came from the userinfo endpoint.
func (e *ProviderError) IsUserInfo() bool { return e.Op == opUserInfo }

// ProviderConfig describes one OAuth 2.0 identity provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	Timeout      time.Duration
}

// Client talks to the identity provider: authorization URL, code exchange and userinfo.
type Client struct {
	cfg         oauth2.Config
	userInfoURL string
	timeout     time.Duration
	httpClient  *http.Client
	validate    *validator.Validate
}

// NewClient creates a provider client. RedirectURL is sent verbatim on both
// the authorization request and the token exchange.
func NewClient(pc ProviderConfig) *Client {
	timeout := pc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg: oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       pc.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   pc.AuthURL,
				TokenURL:  pc.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: pc.UserInfoURL,
		timeout:     timeout,
		httpClient:  &http.Client{Timeout: timeout},
		validate:    validator.New(),
	}
}

// IsConfigured returns true if client credentials are set
func (c *Client) IsConfigured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

// AuthURL returns the provider authorization URL for a state/challenge pair.
func (c *Client) AuthURL(state, codeChallenge string) string {
	return c.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// TokenResponse is the subset of the token endpoint answer the service uses.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
}

// ExchangeCode exchanges the authorization code for tokens (one attempt, no retry).
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, classify(ctx, opTokenExchange, err)
	}

	res := &TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if idt, ok := tok.Extra("id_token").(string); ok {
		res.IDToken = idt
	}
	return res, nil
}

// UserInfo is the strict identity shape accepted from the provider.
type UserInfo struct {
	Email         string `validate:"required,email"`
	Name          string
	Picture       string `validate:"omitempty,url"`
	VerifiedEmail bool
}

// rawUserInfo accepts both Google v2 (verified_email) and OIDC (email_verified) spellings.
type rawUserInfo struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	VerifiedEmail *bool  `json:"verified_email"`
	EmailVerified *bool  `json:"email_verified"`
}

// GetUserInfo fetches the signed-in user's identity with the bearer access token.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, opUserInfo, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, opUserInfo, fmt.Errorf("read userinfo response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			Op:          opUserInfo,
			StatusCode:  resp.StatusCode,
			Description: truncate(string(body)),
		}
	}

	var raw rawUserInfo
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse userinfo: %w", err)
	}

	info := UserInfo{
		Email:   strings.TrimSpace(raw.Email),
		Name:    strings.TrimSpace(raw.Name),
		Picture: strings.TrimSpace(raw.Picture),
	}
	switch {
	case raw.VerifiedEmail != nil:
		info.VerifiedEmail = *raw.VerifiedEmail
	case raw.EmailVerified != nil:
		info.VerifiedEmail = *raw.EmailVerified
	}

	if info.Email == "" {
		return nil, &ProviderError{Op: opUserInfo, StatusCode: resp.StatusCode, Code: "missing_email"}
	}
	if err := c.validate.Struct(info); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Picture" {
					// A bad avatar URL is not worth failing the sign-in.
					info.Picture = ""
					continue
				}
				return nil, &ProviderError{Op: opUserInfo, StatusCode: resp.StatusCode, Code: "invalid_email"}
			}
			return &info, nil
		}
		return nil, err
	}
	return &info, nil
}

// classify maps transport errors onto ErrTimeout / ProviderError / plain errors.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isNetTimeout(err) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		pe := &ProviderError{
			Op:          op,
			Code:        re.ErrorCode,
			Description: truncate(re.ErrorDescription),
		}
		if re.Response != nil {
			pe.StatusCode = re.Response.StatusCode
		}
		if pe.Code == "" && pe.Description == "" {
			pe.Description = truncate(string(re.Body))
		}
		return pe
	}

	// Network-level failures (refused, reset, DNS) stay plain errors.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s request failed: %w", op, err)
	}

	if op == opTokenExchange {
		// e.g. a 200 answer without access_token
		return &ProviderError{Op: op, Description: truncate(err.Error())}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDetailLen {
		return s
	}
	return s[:maxDetailLen] + "..."
}
