package signin

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

type Service struct {
	states   StateStore
	profiles ProfileRepo
	idp      IdentityProvider
	pub      EventPublisher
	sessions SessionEncoder

	stateTTL   time.Duration
	appBaseURL string // e.g. https://app.example.com (no trailing slash)

	audit func(action string, fields map[string]string)
	now   func() time.Time
	newID func() string
}

type Config struct {
	StateTTL   time.Duration
	AppBaseURL string
}

func NewService(
	states StateStore,
	profiles ProfileRepo,
	idp IdentityProvider,
	pub EventPublisher,
	sessions SessionEncoder,
	cfg Config,
) *Service {
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	return &Service{
		states:   states,
		profiles: profiles,
		idp:      idp,
		pub:      pub,
		sessions: sessions,

		stateTTL:   stateTTL,
		appBaseURL: strings.TrimRight(cfg.AppBaseURL, "/"),

		audit: func(string, map[string]string) {},
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (s *Service) WithAudit(fn func(action string, fields map[string]string)) *Service {
	if fn != nil {
		s.audit = fn
	}
	return s
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// domainCode extracts a stable error code for audit fields.
func domainCode(err error) string {
	if err == nil {
		return ""
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}
