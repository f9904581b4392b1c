package memory

import (
	"context"

	"github.com/baechuer/magiclink/services/signin-service/internal/application/signin"
	"github.com/baechuer/magiclink/services/signin-service/internal/logger"
)

type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher { return &NoopPublisher{} }

func (p *NoopPublisher) PublishProfileCreated(ctx context.Context, evt signin.ProfileCreatedEvent) error {
	logger.Ctx(ctx).Debug().Str("user_id", evt.UserID).Msg("noop-pub: profile created")
	return nil
}

func (p *NoopPublisher) PublishSignedIn(ctx context.Context, evt signin.SignedInEvent) error {
	logger.Ctx(ctx).Debug().Str("user_id", evt.UserID).Bool("new_profile", evt.NewProfile).Msg("noop-pub: signed in")
	return nil
}
