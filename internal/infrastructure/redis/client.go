package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/magiclink/services/signin-service/internal/application/signin"
)

const (
	pingTimeout = 2 * time.Second

	// State reads sit on the callback path; fail fast instead of queueing.
	dialTimeout = 2 * time.Second
	ioTimeout   = time.Second
)

// Client owns the go-redis connection pool shared by the Redis adapters.
type Client struct {
	rdb *goredis.Client
}

func New(addr, password string, db int) *Client {
	return &Client{
		rdb: goredis.NewClient(&goredis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  dialTimeout,
			ReadTimeout:  ioTimeout,
			WriteTimeout: ioTimeout,
		}),
	}
}

// OAuthStates returns the single-use PKCE state store backed by this client.
func (c *Client) OAuthStates() signin.StateStore {
	return NewOAuthStateStore(c)
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
