package signin

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/oauth"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/security"
)

/*
Shared audit capture
*/

type auditEntry struct {
	action string
	fields map[string]string
}

/*
Fakes for ports
*/

type fakeStateStore struct {
	mu sync.Mutex

	entries map[string]string // state -> verifier
	used    map[string]bool

	storeErr    error
	validateErr error

	storedTTL time.Duration
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{entries: map[string]string{}, used: map[string]bool{}}
}

func (f *fakeStateStore) Store(ctx context.Context, state, verifier string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return f.storeErr
	}
	f.entries[state] = verifier
	f.storedTTL = ttl
	return nil
}

func (f *fakeStateStore) Validate(ctx context.Context, state string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.validateErr != nil {
		return "", false, f.validateErr
	}
	v, ok := f.entries[state]
	if !ok || f.used[state] {
		return "", false, nil
	}
	f.used[state] = true
	return v, true, nil
}

type fakeProfiles struct {
	mu sync.Mutex

	byEmail map[string]domain.Profile

	upsertErr  error
	getErr     error
	setRoleErr error

	upserts int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{byEmail: map[string]domain.Profile{}}
}

func (f *fakeProfiles) UpsertSignIn(ctx context.Context, in domain.ProfileSignIn) (domain.Profile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return domain.Profile{}, false, f.upsertErr
	}
	f.upserts++
	if p, ok := f.byEmail[in.Email]; ok {
		if in.FullName != "" {
			p.FullName = in.FullName
		}
		if in.AvatarURL != "" {
			p.AvatarURL = in.AvatarURL
		}
		p.EmailVerified = true
		p.LastSignInAt = in.At
		f.byEmail[in.Email] = p
		return p, false, nil
	}
	p := domain.Profile{
		ID:            in.ID,
		Email:         in.Email,
		FullName:      in.FullName,
		AvatarURL:     in.AvatarURL,
		EmailVerified: true,
		LastSignInAt:  in.At,
		CreatedAt:     in.At,
		UpdatedAt:     in.At,
	}
	f.byEmail[in.Email] = p
	return p, true, nil
}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.Profile{}, f.getErr
	}
	for _, p := range f.byEmail {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Profile{}, domain.ErrProfileNotFound()
}

func (f *fakeProfiles) FindByEmail(ctx context.Context, email string) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byEmail[email]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound()
	}
	return p, nil
}

func (f *fakeProfiles) SetRole(ctx context.Context, id string, role domain.Role) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setRoleErr != nil {
		return domain.Profile{}, f.setRoleErr
	}
	for email, p := range f.byEmail {
		if p.ID != id {
			continue
		}
		if p.Role != "" {
			return domain.Profile{}, domain.ErrRoleAlreadySet()
		}
		p.Role = role
		f.byEmail[email] = p
		return p, nil
	}
	return domain.Profile{}, domain.ErrProfileNotFound()
}

type fakeIDP struct {
	configured bool

	exchangeRes *oauth.TokenResponse
	exchangeErr error
	userInfoRes *oauth.UserInfo
	userInfoErr error

	gotCode        string
	gotVerifier    string
	gotAccessToken string
	gotChallenge   string
	exchangeCalls  int
	userInfoCalls  int
}

func (f *fakeIDP) IsConfigured() bool { return f.configured }

func (f *fakeIDP) AuthURL(state, challenge string) string {
	f.gotChallenge = challenge
	return "https://idp.example.com/authorize?state=" + state + "&code_challenge=" + challenge
}

func (f *fakeIDP) ExchangeCode(ctx context.Context, code, verifier string) (*oauth.TokenResponse, error) {
	f.exchangeCalls++
	f.gotCode = code
	f.gotVerifier = verifier
	return f.exchangeRes, f.exchangeErr
}

func (f *fakeIDP) GetUserInfo(ctx context.Context, token string) (*oauth.UserInfo, error) {
	f.userInfoCalls++
	f.gotAccessToken = token
	return f.userInfoRes, f.userInfoErr
}

type fakePublisher struct {
	created  []ProfileCreatedEvent
	signedIn []SignedInEvent
	err      error
}

func (f *fakePublisher) PublishProfileCreated(ctx context.Context, evt ProfileCreatedEvent) error {
	f.created = append(f.created, evt)
	return f.err
}

func (f *fakePublisher) PublishSignedIn(ctx context.Context, evt SignedInEvent) error {
	f.signedIn = append(f.signedIn, evt)
	return f.err
}

type failingEncoder struct{ err error }

func (f failingEncoder) Encode(domain.Session) (string, error) { return "", f.err }

/*
Service builder
*/

const testSessionSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc      *Service
	states   *fakeStateStore
	profiles *fakeProfiles
	idp      *fakeIDP
	pub      *fakePublisher
	codec    *security.SessionCodec
	audits   *[]auditEntry
}

func newSvcForTest(t *testing.T) testEnv {
	t.Helper()

	env := testEnv{
		states:   newFakeStateStore(),
		profiles: newFakeProfiles(),
		idp: &fakeIDP{
			configured:  true,
			exchangeRes: &oauth.TokenResponse{AccessToken: "t1", TokenType: "Bearer"},
			userInfoRes: &oauth.UserInfo{Email: "a@b.com", Name: "A B"},
		},
		pub:    &fakePublisher{},
		codec:  security.NewSessionCodec(testSessionSecret, 24*time.Hour),
		audits: &[]auditEntry{},
	}

	ids := 0
	env.svc = NewService(env.states, env.profiles, env.idp, env.pub, env.codec, Config{
		StateTTL:   10 * time.Minute,
		AppBaseURL: "https://app.example.com/",
	}).
		WithClock(func() time.Time { return testNow }).
		WithAudit(func(action string, fields map[string]string) {
			cp := map[string]string{}
			for k, v := range fields {
				cp[k] = v
			}
			*env.audits = append(*env.audits, auditEntry{action: action, fields: cp})
		})
	env.svc.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}

	return env
}

/*
Small assertions
*/

func requireDomainCode(t *testing.T, err error, wantCode string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", wantCode)
	}
	if !domain.Is(err, wantCode) {
		t.Fatalf("expected error code %q, got %v", wantCode, err)
	}
}

func requireFailureCode(t *testing.T, fail *Failure, wantCode string) {
	t.Helper()
	if fail == nil {
		t.Fatalf("expected failure %q, got success", wantCode)
	}
	if fail.Code != wantCode {
		t.Fatalf("expected failure code %q, got %q (%v)", wantCode, fail.Code, fail)
	}
}

func lastAudit(t *testing.T, audits *[]auditEntry) auditEntry {
	t.Helper()
	if len(*audits) == 0 {
		t.Fatalf("expected audit entries")
	}
	return (*audits)[len(*audits)-1]
}
