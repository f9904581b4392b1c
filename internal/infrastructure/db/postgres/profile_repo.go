package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// ---------- helpers ----------

const profileColumns = `id, email, full_name, avatar_url, email_verified, role, last_sign_in_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, extra ...any) (profileRow, error) {
	var pr profileRow
	dest := []any{
		&pr.ID,
		&pr.Email,
		&pr.FullName,
		&pr.AvatarURL,
		&pr.EmailVerified,
		&pr.Role,
		&pr.LastSignInAt,
		&pr.CreatedAt,
		&pr.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return pr, err
}

func toDomainProfile(pr profileRow) domain.Profile {
	p := domain.Profile{
		ID:            pr.ID,
		Email:         pr.Email,
		FullName:      pr.FullName,
		AvatarURL:     pr.AvatarURL,
		EmailVerified: pr.EmailVerified,
		LastSignInAt:  pr.LastSignInAt.UTC(),
		CreatedAt:     pr.CreatedAt.UTC(),
		UpdatedAt:     pr.UpdatedAt.UTC(),
	}
	if pr.Role.Valid {
		p.Role = domain.Role(pr.Role.String)
	}
	return p
}

// ---------- signin.ProfileRepo ----------

// UpsertSignIn reconciles a sign-in in one statement. Concurrent first
// sign-ins for the same email resolve to a single row; the loser takes the
// DO UPDATE branch. xmax = 0 only for freshly inserted tuples.
func (r *ProfileRepo) UpsertSignIn(ctx context.Context, in domain.ProfileSignIn) (domain.Profile, bool, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		return domain.Profile{}, false, domain.ErrMissingField("email")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	const q = `
INSERT INTO profiles (id, email, full_name, avatar_url, email_verified, last_sign_in_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, $5, $5, $5)
ON CONFLICT (email) DO UPDATE SET
    full_name       = COALESCE(NULLIF(EXCLUDED.full_name, ''), profiles.full_name),
    avatar_url      = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), profiles.avatar_url),
    email_verified  = TRUE,
    last_sign_in_at = EXCLUDED.last_sign_in_at,
    updated_at      = EXCLUDED.updated_at
RETURNING ` + profileColumns + `, (xmax = 0) AS created;
`
	var created bool
	pr, err := scanProfile(
		r.db.QueryRowContext(ctx, q, id, email, in.FullName, in.AvatarURL, in.At.UTC()),
		&created,
	)
	if err != nil {
		return domain.Profile{}, false, domain.ErrDBUnavailable(err)
	}
	return toDomainProfile(pr), created, nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Profile{}, domain.ErrMissingField("id")
	}
	if _, err := uuid.Parse(id); err != nil {
		// not a uuid: cannot exist, and would fail the cast in Postgres
		return domain.Profile{}, domain.ErrProfileNotFound()
	}

	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 LIMIT 1;`
	return r.getOne(ctx, q, id)
}

func (r *ProfileRepo) FindByEmail(ctx context.Context, email string) (domain.Profile, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.Profile{}, domain.ErrMissingField("email")
	}

	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE email = $1 LIMIT 1;`
	return r.getOne(ctx, q, email)
}

// SetRole records the onboarding role. It only succeeds while role is
// still NULL; an existing role yields role_already_set.
func (r *ProfileRepo) SetRole(ctx context.Context, id string, role domain.Role) (domain.Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Profile{}, domain.ErrMissingField("id")
	}
	if !domain.IsValidRole(string(role)) {
		return domain.Profile{}, domain.ErrInvalidRole(string(role))
	}
	if _, err := uuid.Parse(id); err != nil {
		return domain.Profile{}, domain.ErrProfileNotFound()
	}

	const q = `
UPDATE profiles
SET role = $2, updated_at = now()
WHERE id = $1 AND role IS NULL
RETURNING ` + profileColumns + `;
`
	pr, err := scanProfile(r.db.QueryRowContext(ctx, q, id, string(role)))
	if err == nil {
		return toDomainProfile(pr), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Profile{}, domain.ErrDBUnavailable(err)
	}

	// no row updated: either missing or already onboarded
	if _, err := r.GetByID(ctx, id); err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{}, domain.ErrRoleAlreadySet()
}

func (r *ProfileRepo) getOne(ctx context.Context, q string, arg any) (domain.Profile, error) {
	pr, err := scanProfile(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, domain.ErrProfileNotFound()
		}
		return domain.Profile{}, domain.ErrDBUnavailable(err)
	}
	return toDomainProfile(pr), nil
}
