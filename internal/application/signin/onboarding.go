package signin

import (
	"context"
	"strings"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	pkgctx "github.com/baechuer/magiclink/services/signin-service/internal/pkg/context"
)

// Me returns the profile behind a verified session.
func (s *Service) Me(ctx context.Context, userID string) (domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Profile{}, domain.ErrUnauthenticated()
	}
	return s.profiles.GetByID(ctx, userID)
}

// SelectRole records the onboarding role. A role can be chosen once.
func (s *Service) SelectRole(ctx context.Context, userID, role string) (domain.Profile, error) {
	userID = strings.TrimSpace(userID)
	role = strings.ToLower(strings.TrimSpace(role))

	audit := func(result string, err error) {
		fields := map[string]string{
			"user_id":    userID,
			"role":       role,
			"result":     result,
			"request_id": pkgctx.GetRequestID(ctx),
		}
		if err != nil {
			fields["error_code"] = domainCode(err)
		}
		s.audit(ActionRoleSelected, fields)
	}

	if userID == "" {
		return domain.Profile{}, domain.ErrUnauthenticated()
	}
	if role == "" {
		err := domain.ErrMissingField("role")
		audit("error", err)
		return domain.Profile{}, err
	}
	if !domain.IsValidRole(role) {
		err := domain.ErrInvalidRole(role)
		audit("error", err)
		return domain.Profile{}, err
	}

	p, err := s.profiles.SetRole(ctx, userID, domain.Role(role))
	if err != nil {
		audit("error", err)
		return domain.Profile{}, err
	}
	audit("success", nil)
	return p, nil
}
