package signin

import (
	"context"
	"time"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/oauth"
)

/*
StateStore
----------
Single-use CSRF state -> PKCE verifier.
Validate consumes the entry in one atomic step: a second call for the
same state always reports ok=false. err is for backend failures only.
*/
type StateStore interface {
	Store(ctx context.Context, state, codeVerifier string, ttl time.Duration) error
	Validate(ctx context.Context, state string) (codeVerifier string, ok bool, err error)
}

/*
ProfileRepo
-----------
Persistence port for user profiles. UpsertSignIn is a single atomic
statement keyed by lower-cased email; created reports whether the row
was inserted.
*/
type ProfileRepo interface {
	UpsertSignIn(ctx context.Context, in domain.ProfileSignIn) (p domain.Profile, created bool, err error)
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	FindByEmail(ctx context.Context, email string) (domain.Profile, error)
	SetRole(ctx context.Context, id string, role domain.Role) (domain.Profile, error)
}

/*
IdentityProvider
----------------
The OAuth 2.0 provider (authorization URL, code exchange, userinfo).
*/
type IdentityProvider interface {
	IsConfigured() bool
	AuthURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth.TokenResponse, error)
	GetUserInfo(ctx context.Context, accessToken string) (*oauth.UserInfo, error)
}

/*
EventPublisher
--------------
Publishes sign-in events to RabbitMQ. Best effort: failures are logged
by the caller and never change the sign-in outcome.
*/
type EventPublisher interface {
	PublishProfileCreated(ctx context.Context, evt ProfileCreatedEvent) error
	PublishSignedIn(ctx context.Context, evt SignedInEvent) error
}

type ProfileCreatedEvent struct {
	UserID string
	Email  string
	At     time.Time
}

type SignedInEvent struct {
	UserID     string
	Email      string
	NewProfile bool
	At         time.Time
}

/*
SessionEncoder
--------------
Turns an authenticated session into the signed cookie value.
*/
type SessionEncoder interface {
	Encode(s domain.Session) (string, error)
}
