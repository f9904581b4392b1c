package signin

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/oauth"
)

// Callback error codes. They end up in the error page query string and are
// read by the frontend, so treat them as a public contract.
const (
	CodeMissingParams       = "missing_params"
	CodeInvalidState        = "invalid_state"
	CodeTokenExchangeFailed = "token_exchange_failed"
	CodeUserInfoFailed      = "user_info_failed"
	CodeProfileWriteFailed  = "profile_write_failed"
	CodeProviderTimeout     = "provider_timeout"
	CodeUnexpectedError     = "unexpected_error"
	CodeRateLimited         = "rate_limited"

	codeProviderFallback = "provider_error"
	maxCodeLen           = 64
	maxDetailsLen        = 200
)

// Audit actions emitted by the service.
const (
	ActionSigninStarted   = "signin_started"
	ActionSigninSucceeded = "signin_succeeded"
	ActionSigninFailed    = "signin_failed"
	ActionProfileCreated  = "profile_created"
	ActionRoleSelected    = "role_selected"
)

// Failure is the terminal error state of a callback. Code and Details are
// safe to show; Cause is for logs only.
type Failure struct {
	Code    string
	Details string
	Cause   error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("signin %s: %s: %v", f.Code, f.Details, f.Cause)
	}
	return fmt.Sprintf("signin %s: %s", f.Code, f.Details)
}

func (f *Failure) Unwrap() error { return f.Cause }

// ErrorRedirectURL is the single exit for every failed sign-in.
func (s *Service) ErrorRedirectURL(f *Failure) string {
	q := url.Values{}
	q.Set("error", f.Code)
	if f.Details != "" {
		q.Set("details", f.Details)
	}
	return s.appBaseURL + "/auth/error?" + q.Encode()
}

// Unexpected wraps an unclassified error. Its details never leak the cause.
func Unexpected(cause error) *Failure {
	return &Failure{Code: CodeUnexpectedError, Details: "An unexpected error occurred", Cause: cause}
}

// providerFailure classifies an identity provider error. Protocol errors
// map to the code of the endpoint that failed, timeouts to provider_timeout,
// and anything else (network, malformed body) to unexpected_error.
func providerFailure(err error) *Failure {
	if errors.Is(err, oauth.ErrTimeout) {
		return &Failure{Code: CodeProviderTimeout, Details: "The identity provider did not respond in time", Cause: err}
	}
	var pe *oauth.ProviderError
	if !errors.As(err, &pe) {
		return Unexpected(err)
	}

	var code string
	switch {
	case pe.IsTokenExchange():
		code = CodeTokenExchangeFailed
	case pe.IsUserInfo():
		code = CodeUserInfoFailed
	default:
		return Unexpected(err)
	}

	details := pe.Code
	if pe.Description != "" {
		if details != "" {
			details += ": "
		}
		details += pe.Description
	}
	if details == "" {
		details = fmt.Sprintf("provider returned status %d", pe.StatusCode)
	}
	return &Failure{Code: code, Details: sanitizeDetails(details), Cause: err}
}

// RateLimited is the failure shown when a client exceeds the sign-in rate limit.
func RateLimited() *Failure {
	return &Failure{Code: CodeRateLimited, Details: "Too many sign-in attempts, try again shortly"}
}

// providerCode sanitises a provider-supplied code. Codes that collide with
// the service's own taxonomy collapse to provider_error.
func providerCode(raw string) string {
	code := sanitizeCode(raw)
	if IsKnownCode(code) {
		return codeProviderFallback
	}
	return code
}

// sanitizeCode maps a provider-supplied error code onto [a-z0-9_]{1,64}.
func sanitizeCode(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if b.Len() >= maxCodeLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if strings.Trim(b.String(), "_") == "" {
		return codeProviderFallback
	}
	return b.String()
}

// sanitizeDetails drops control characters and bounds the length. The
// value is query-encoded by ErrorRedirectURL.
func sanitizeDetails(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, strings.TrimSpace(raw))
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if r := []rune(cleaned); len(r) > maxDetailsLen {
		cleaned = string(r[:maxDetailsLen]) + "..."
	}
	return cleaned
}

// IsKnownCode reports whether code is one of the service's own codes rather
// than one forwarded from the provider.
func IsKnownCode(code string) bool {
	switch code {
	case CodeMissingParams, CodeInvalidState, CodeTokenExchangeFailed, CodeUserInfoFailed,
		CodeProfileWriteFailed, CodeProviderTimeout, CodeUnexpectedError, CodeRateLimited:
		return true
	}
	return false
}
