package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/oauth"
)

// OAuthStateStore is the single-process state store used when Redis is
// not available (dev, tests).
type OAuthStateStore struct {
	mu     sync.Mutex
	states map[string]stateEntry
	now    func() time.Time
}

type stateEntry struct {
	codeVerifier string
	expiresAt    time.Time
	used         bool
}

func NewOAuthStateStore() *OAuthStateStore {
	return &OAuthStateStore{
		states: make(map[string]stateEntry),
		now:    time.Now,
	}
}

func (s *OAuthStateStore) Store(ctx context.Context, state, codeVerifier string, ttl time.Duration) error {
	state = strings.TrimSpace(state)
	if state == "" {
		return domain.ErrMissingField("state")
	}
	if codeVerifier == "" {
		return domain.ErrMissingField("code_verifier")
	}
	if !oauth.ValidCodeVerifier(codeVerifier) {
		return domain.ErrInvalidField("code_verifier", "must be 43-128 unreserved characters")
	}
	if ttl <= 0 {
		return domain.ErrMissingField("ttl")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	s.states[state] = stateEntry{
		codeVerifier: codeVerifier,
		expiresAt:    now.Add(ttl),
	}
	return nil
}

func (s *OAuthStateStore) Validate(ctx context.Context, state string) (string, bool, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok || entry.used {
		return "", false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.states, state)
		return "", false, nil
	}

	// mark used; the sweep drops it once it expires
	entry.used = true
	s.states[state] = entry
	return entry.codeVerifier, true, nil
}

// count reports how many entries are held (used ones included).
func (s *OAuthStateStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *OAuthStateStore) sweepLocked(now time.Time) {
	for k, v := range s.states {
		if now.After(v.expiresAt) {
			delete(s.states, k)
		}
	}
}
