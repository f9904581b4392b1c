package signin

import (
	"context"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/oauth"
	pkgctx "github.com/baechuer/magiclink/services/signin-service/internal/pkg/context"
)

// StartResult contains the authorization URL to redirect to
type StartResult struct {
	AuthURL string
	State   string
}

// Start generates a state/verifier pair, stores it for the state TTL and
// builds the provider authorization URL carrying the S256 challenge.
func (s *Service) Start(ctx context.Context) (*StartResult, error) {
	if !s.idp.IsConfigured() {
		return nil, domain.New(domain.KindInternal, "oauth_not_configured", "oauth provider not configured")
	}

	state, err := oauth.GenerateState()
	if err != nil {
		return nil, domain.ErrRandomFailed(err)
	}
	verifier, err := oauth.GenerateCodeVerifier()
	if err != nil {
		return nil, domain.ErrRandomFailed(err)
	}

	if err := s.states.Store(ctx, state, verifier, s.stateTTL); err != nil {
		return nil, err
	}

	s.audit(ActionSigninStarted, map[string]string{
		"request_id": pkgctx.GetRequestID(ctx),
	})

	return &StartResult{
		AuthURL: s.idp.AuthURL(state, oauth.GenerateCodeChallenge(verifier)),
		State:   state,
	}, nil
}
