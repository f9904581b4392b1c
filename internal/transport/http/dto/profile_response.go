package dto

import (
	"time"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

type ProfileResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	Role          *string    `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	LastSignInAt  *time.Time `json:"last_sign_in_at,omitempty"`
}

// NewProfileResponse renders a profile. Role is null until onboarding.
func NewProfileResponse(p domain.Profile) ProfileResponse {
	out := ProfileResponse{
		ID:            p.ID,
		Email:         p.Email,
		FullName:      p.FullName,
		AvatarURL:     p.AvatarURL,
		EmailVerified: p.EmailVerified,
	}
	if p.Role != "" {
		role := string(p.Role)
		out.Role = &role
	}
	if !p.LastSignInAt.IsZero() {
		at := p.LastSignInAt.UTC()
		out.LastSignInAt = &at
	}
	return out
}
