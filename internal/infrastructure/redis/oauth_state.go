package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/magiclink/services/signin-service/internal/domain"
	"github.com/baechuer/magiclink/services/signin-service/internal/infrastructure/oauth"
)

const statePrefix = "oauth:state:"

// Atomic GET + DEL: a state can be read exactly once.
var consumeState = goredis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
  return false
end
redis.call("DEL", KEYS[1])
return v
`)

type stateRecord struct {
	CodeVerifier string    `json:"code_verifier"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// OAuthStateStore keeps PKCE verifiers keyed by the CSRF state.
// Expiry is enforced by the key TTL.
type OAuthStateStore struct {
	rdb *goredis.Client
	now func() time.Time
}

func NewOAuthStateStore(c *Client) *OAuthStateStore {
	var rdb *goredis.Client
	if c != nil {
		rdb = c.rdb
	}
	return &OAuthStateStore{rdb: rdb, now: time.Now}
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
	if s.rdb == nil {
		return errors.New("redis oauth state store not configured")
	}

	data, err := json.Marshal(stateRecord{
		CodeVerifier: codeVerifier,
		ExpiresAt:    s.now().Add(ttl).UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal oauth state: %w", err)
	}

	if err := s.rdb.Set(ctx, statePrefix+state, data, ttl).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

// Validate consumes the state. ok is false when the state is unknown,
// expired or already used; err is reserved for backend failures.
func (s *OAuthStateStore) Validate(ctx context.Context, state string) (string, bool, error) {
	state = strings.TrimSpace(state)
	if state == "" {
		return "", false, nil
	}
	if s.rdb == nil {
		return "", false, errors.New("redis oauth state store not configured")
	}

	res, err := consumeState.Run(ctx, s.rdb, []string{statePrefix + state}).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.ErrRedisUnavailable(err)
	}

	raw, ok := res.(string)
	if !ok {
		return "", false, nil
	}

	var rec stateRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// unreadable entries are already deleted; treat as not found
		return "", false, nil
	}
	if !rec.ExpiresAt.IsZero() && s.now().After(rec.ExpiresAt) {
		return "", false, nil
	}
	if rec.CodeVerifier == "" {
		return "", false, nil
	}
	return rec.CodeVerifier, true, nil
}
