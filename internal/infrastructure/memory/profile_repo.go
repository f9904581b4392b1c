package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

type ProfileRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.Profile
	byEmail map[string]string // email -> profile id
	now     func() time.Time
}

func NewProfileRepo() *ProfileRepo {
	return &ProfileRepo{
		byID:    make(map[string]domain.Profile),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// UpsertSignIn mirrors the Postgres upsert: insert on first sign-in,
// otherwise refresh display fields (non-empty only), mark the email
// verified and bump last_sign_in_at. Role is never touched.
func (r *ProfileRepo) UpsertSignIn(ctx context.Context, in domain.ProfileSignIn) (domain.Profile, bool, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" {
		return domain.Profile{}, false, domain.ErrMissingField("email")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byEmail[email]; ok {
		p := r.byID[id]
		if in.FullName != "" {
			p.FullName = in.FullName
		}
		if in.AvatarURL != "" {
			p.AvatarURL = in.AvatarURL
		}
		p.EmailVerified = true
		p.LastSignInAt = in.At
		p.UpdatedAt = in.At
		r.byID[id] = p
		return p, false, nil
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Profile{
		ID:            id,
		Email:         email,
		FullName:      in.FullName,
		AvatarURL:     in.AvatarURL,
		EmailVerified: true,
		LastSignInAt:  in.At,
		CreatedAt:     in.At,
		UpdatedAt:     in.At,
	}
	r.byID[id] = p
	r.byEmail[email] = id
	return p, true, nil
}

func (r *ProfileRepo) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound()
	}
	return p, nil
}

func (r *ProfileRepo) FindByEmail(ctx context.Context, email string) (domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound()
	}
	return r.byID[id], nil
}

func (r *ProfileRepo) SetRole(ctx context.Context, id string, role domain.Role) (domain.Profile, error) {
	if !domain.IsValidRole(string(role)) {
		return domain.Profile{}, domain.ErrInvalidRole(string(role))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound()
	}
	if p.Role != "" {
		return domain.Profile{}, domain.ErrRoleAlreadySet()
	}
	p.Role = role
	p.UpdatedAt = r.now().UTC()
	r.byID[id] = p
	return p, nil
}
