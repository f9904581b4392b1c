package signin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	pkgctx "github.com/baechuer/magiclink/services/signin-service/internal/pkg/context"
)

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult is the outcome of a successful sign-in.
type CallbackResult struct {
	Profile     domain.Profile
	Created     bool
	Session     domain.Session
	CookieValue string
	RedirectURL string

	// PublishErr is set when a best-effort event could not be delivered.
	PublishErr error
}

// Callback runs the whole callback flow:
// params -> state -> token exchange -> userinfo -> profile upsert -> session.
// Every failure (including a panic) comes back as exactly one *Failure.
func (s *Service) Callback(ctx context.Context, p CallbackParams) (res *CallbackResult, fail *Failure) {
	email := ""
	defer func() {
		if r := recover(); r != nil {
			res = nil
			fail = Unexpected(fmt.Errorf("panic: %v", r))
		}
		if fail != nil {
			fields := map[string]string{
				"code":       fail.Code,
				"request_id": pkgctx.GetRequestID(ctx),
			}
			if email != "" {
				fields["email"] = email
			}
			s.audit(ActionSigninFailed, fields)
		}
	}()

	// 1) params
	if providerErr := strings.TrimSpace(p.Error); providerErr != "" {
		details := sanitizeDetails(p.ErrorDescription)
		return nil, &Failure{
			Code:    providerCode(providerErr),
			Details: details,
			Cause:   fmt.Errorf("provider returned error %q: %s", providerErr, details),
		}
	}
	code := strings.TrimSpace(p.Code)
	state := strings.TrimSpace(p.State)
	if code == "" || state == "" {
		return nil, &Failure{Code: CodeMissingParams, Details: "Missing authorization code or state"}
	}

	// 2) state: validated and consumed before any provider call
	verifier, ok, err := s.states.Validate(ctx, state)
	if err != nil {
		return nil, Unexpected(fmt.Errorf("validate state: %w", err))
	}
	if !ok {
		return nil, &Failure{Code: CodeInvalidState, Details: "Sign-in session expired or was already used"}
	}

	// 3) token exchange
	tok, err := s.idp.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, providerFailure(err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, &Failure{
			Code:    CodeTokenExchangeFailed,
			Details: "No access token in token response",
			Cause:   errors.New("empty access token"),
		}
	}

	// 4) userinfo
	info, err := s.idp.GetUserInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, providerFailure(err)
	}
	if info == nil || strings.TrimSpace(info.Email) == "" {
		return nil, &Failure{
			Code:    CodeUserInfoFailed,
			Details: "No email in user info",
			Cause:   errors.New("userinfo without email"),
		}
	}
	email = domain.NormalizeEmail(info.Email)

	// 5) profile reconciliation (single atomic upsert)
	now := s.now().UTC()
	profile, created, err := s.profiles.UpsertSignIn(ctx, domain.ProfileSignIn{
		ID:        s.newID(),
		Email:     email,
		FullName:  strings.TrimSpace(info.Name),
		AvatarURL: strings.TrimSpace(info.Picture),
		At:        now,
	})
	if err != nil {
		return nil, &Failure{
			Code:    CodeProfileWriteFailed,
			Details: "Could not save your profile",
			Cause:   err,
		}
	}

	// 6) session
	sess := domain.NewSession(profile, now)
	cookie, err := s.sessions.Encode(sess)
	if err != nil {
		return nil, Unexpected(fmt.Errorf("encode session: %w", err))
	}

	res = &CallbackResult{
		Profile:     profile,
		Created:     created,
		Session:     sess,
		CookieValue: cookie,
		RedirectURL: s.successRedirectURL(profile),
	}
	res.PublishErr = s.publishSignIn(ctx, profile, created, now)

	fields := map[string]string{
		"user_id":     profile.ID,
		"email":       profile.Email,
		"new_profile": fmt.Sprintf("%t", created),
		"request_id":  pkgctx.GetRequestID(ctx),
	}
	if created {
		s.audit(ActionProfileCreated, fields)
	}
	s.audit(ActionSigninSucceeded, fields)

	return res, nil
}

// successRedirectURL sends users without a role to onboarding.
func (s *Service) successRedirectURL(p domain.Profile) string {
	u := s.appBaseURL + "/auth/success"
	if !p.HasCompletedOnboarding() {
		u += "?onboarding=select_role"
	}
	return u
}

func (s *Service) publishSignIn(ctx context.Context, p domain.Profile, created bool, at time.Time) error {
	if s.pub == nil {
		return nil
	}
	var errs []error
	if created {
		if err := s.pub.PublishProfileCreated(ctx, ProfileCreatedEvent{
			UserID: p.ID,
			Email:  p.Email,
			At:     at,
		}); err != nil {
			errs = append(errs, fmt.Errorf("profile created event: %w", err))
		}
	}
	if err := s.pub.PublishSignedIn(ctx, SignedInEvent{
		UserID:     p.ID,
		Email:      p.Email,
		NewProfile: created,
		At:         at,
	}); err != nil {
		errs = append(errs, fmt.Errorf("signed in event: %w", err))
	}
	return errors.Join(errs...)
}
