package postgres

import (
	"database/sql"
	"time"
)

type profileRow struct {
	ID            string
	Email         string
	FullName      string
	AvatarURL     string
	EmailVerified bool
	Role          sql.NullString
	LastSignInAt  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
