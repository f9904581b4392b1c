package domain

import "time"

// Session is the payload carried by the session cookie.
// JSON names match what the frontend reads.
type Session struct {
	UserID        string    `json:"userId"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName,omitempty"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	Authenticated bool      `json:"authenticated"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// NewSession builds an authenticated session for a reconciled profile.
func NewSession(p Profile, now time.Time) Session {
	return Session{
		UserID:        p.ID,
		Email:         p.Email,
		FullName:      p.FullName,
		AvatarURL:     p.AvatarURL,
		Authenticated: true,
		IssuedAt:      now.UTC(),
	}
}
