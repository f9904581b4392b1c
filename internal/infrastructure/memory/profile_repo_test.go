package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
)

func TestProfileRepo_UpsertSignIn_CreatesThenUpdates(t *testing.T) {
	r := NewProfileRepo()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p, created, err := r.UpsertSignIn(ctx, domain.ProfileSignIn{
		ID: "id-1", Email: " Alice@Example.com ", FullName: "Alice", AvatarURL: "https://a/1.png", At: t0,
	})
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	if p.ID != "id-1" || p.Email != "alice@example.com" || !p.EmailVerified {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if _, err := r.SetRole(ctx, "id-1", domain.RoleSeller); err != nil {
		t.Fatalf("set role: %v", err)
	}

	t1 := t0.Add(time.Hour)
	p, created, err = r.UpsertSignIn(ctx, domain.ProfileSignIn{
		ID: "id-ignored", Email: "alice@example.com", FullName: "", AvatarURL: "https://a/2.png", At: t1,
	})
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	if p.ID != "id-1" {
		t.Fatalf("id must be stable, got %q", p.ID)
	}
	if p.FullName != "Alice" {
		t.Fatalf("empty name must not overwrite, got %q", p.FullName)
	}
	if p.AvatarURL != "https://a/2.png" {
		t.Fatalf("avatar not refreshed: %q", p.AvatarURL)
	}
	if p.Role != domain.RoleSeller {
		t.Fatalf("role must be preserved, got %q", p.Role)
	}
	if !p.LastSignInAt.Equal(t1) || !p.CreatedAt.Equal(t0) {
		t.Fatalf("timestamps wrong: %+v", p)
	}
}

func TestProfileRepo_UpsertSignIn_GeneratesID(t *testing.T) {
	r := NewProfileRepo()
	p, created, err := r.UpsertSignIn(context.Background(), domain.ProfileSignIn{Email: "b@example.com", At: time.Now()})
	if err != nil || !created || p.ID == "" {
		t.Fatalf("expected generated id: %+v created=%v err=%v", p, created, err)
	}
}

func TestProfileRepo_UpsertSignIn_MissingEmail(t *testing.T) {
	_, _, err := NewProfileRepo().UpsertSignIn(context.Background(), domain.ProfileSignIn{Email: "  "})
	if !domain.Is(err, "missing_field") {
		t.Fatalf("expected missing_field, got %v", err)
	}
}

func TestProfileRepo_ConcurrentFirstSignIn_OneProfile(t *testing.T) {
	r := NewProfileRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, _, err := r.UpsertSignIn(ctx, domain.ProfileSignIn{Email: "race@example.com", At: time.Now()})
			if err == nil {
				ids <- p.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	first := ""
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Fatalf("expected one profile id, got %q and %q", first, id)
		}
	}
	if len(r.byID) != 1 {
		t.Fatalf("expected one row, got %d", len(r.byID))
	}
}

func TestProfileRepo_Lookups(t *testing.T) {
	r := NewProfileRepo()
	ctx := context.Background()
	_, _, _ = r.UpsertSignIn(ctx, domain.ProfileSignIn{ID: "id-1", Email: "c@example.com", At: time.Now()})

	if _, err := r.GetByID(ctx, "id-1"); err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if _, err := r.FindByEmail(ctx, "C@EXAMPLE.COM"); err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if _, err := r.GetByID(ctx, "missing"); !domain.Is(err, "profile_not_found") {
		t.Fatalf("expected profile_not_found, got %v", err)
	}
	if _, err := r.FindByEmail(ctx, "missing@example.com"); !domain.Is(err, "profile_not_found") {
		t.Fatalf("expected profile_not_found, got %v", err)
	}
}

func TestProfileRepo_SetRole(t *testing.T) {
	r := NewProfileRepo()
	ctx := context.Background()
	_, _, _ = r.UpsertSignIn(ctx, domain.ProfileSignIn{ID: "id-1", Email: "d@example.com", At: time.Now()})

	if _, err := r.SetRole(ctx, "id-1", "admin"); !domain.Is(err, "invalid_role") {
		t.Fatalf("expected invalid_role, got %v", err)
	}
	if _, err := r.SetRole(ctx, "nope", domain.RoleBuyer); !domain.Is(err, "profile_not_found") {
		t.Fatalf("expected profile_not_found, got %v", err)
	}
	p, err := r.SetRole(ctx, "id-1", domain.RoleBuyer)
	if err != nil || p.Role != domain.RoleBuyer {
		t.Fatalf("set role: %+v err=%v", p, err)
	}
	if _, err := r.SetRole(ctx, "id-1", domain.RoleSeller); !domain.Is(err, "role_already_set") {
		t.Fatalf("expected role_already_set, got %v", err)
	}
}

func TestProfileRepo_SetRole_BumpsUpdatedAt(t *testing.T) {
	r := NewProfileRepo()
	ctx := context.Background()
	signedIn := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	chosen := signedIn.Add(5 * time.Minute)
	r.now = func() time.Time { return chosen }

	_, _, _ = r.UpsertSignIn(ctx, domain.ProfileSignIn{ID: "id-1", Email: "e@example.com", At: signedIn})

	p, err := r.SetRole(ctx, "id-1", domain.RoleSeller)
	if err != nil {
		t.Fatalf("set role: %v", err)
	}
	if !p.UpdatedAt.Equal(chosen) {
		t.Fatalf("expected updated_at %v, got %v", chosen, p.UpdatedAt)
	}
	if !p.LastSignInAt.Equal(signedIn) || !p.CreatedAt.Equal(signedIn) {
		t.Fatalf("only updated_at moves: %+v", p)
	}

	stored, _ := r.GetByID(ctx, "id-1")
	if !stored.UpdatedAt.Equal(chosen) {
		t.Fatalf("stored profile not updated: %v", stored.UpdatedAt)
	}
}
