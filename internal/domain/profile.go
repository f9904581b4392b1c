package domain

import (
	"strings"
	"time"
)

// Profile is the local account reconciled from an identity provider sign-in.
// Email is the reconciliation key: exactly one profile exists per email.
type Profile struct {
	ID            string
	Email         string
	FullName      string
	AvatarURL     string
	EmailVerified bool
	Role          Role // empty until onboarding picks one
	LastSignInAt  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasCompletedOnboarding reports whether the user already picked a role.
func (p Profile) HasCompletedOnboarding() bool {
	return p.Role != ""
}

// ProfileSignIn carries the identity-derived fields written on every
// successful callback.
type ProfileSignIn struct {
	ID        string // used only when the upsert inserts a new row
	Email     string
	FullName  string
	AvatarURL string
	At        time.Time
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
