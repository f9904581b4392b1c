package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/baechuer/magiclink/services/signin-service/internal/application/signin"
)

const (
	DefaultExchange = "magiclink.events"

	RoutingProfileCreated = "auth.profile.created"
	RoutingSignedIn       = "auth.signin.succeeded"

	publishWait = 2 * time.Second

	// Publishing happens on the callback path, so a dead broker must cost
	// at most one bounded dial per backoff window.
	dialTimeout   = time.Second
	redialBackoff = 5 * time.Second
)

// ErrBrokerBackoff is returned while the publisher waits before redialing
// a broker that just failed.
var ErrBrokerBackoff = errors.New("rabbitmq unavailable, redial pending")

type Publisher struct {
	url      string
	exchange string

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation

	// next redial is allowed at or after retryAt
	retryAt time.Time
	now     func() time.Time
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &Publisher{
		url:      url,
		exchange: exchange,
		now:      time.Now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishWait)
	defer cancel()
	if err := p.connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetConn()
	return nil
}

// ---- signin.EventPublisher ----

type profileCreatedMessage struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	OccurredAt time.Time `json:"occurred_at"`
}

type signedInMessage struct {
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	NewProfile bool      `json:"new_profile"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (p *Publisher) PublishProfileCreated(ctx context.Context, evt signin.ProfileCreatedEvent) error {
	return p.publishJSON(ctx, RoutingProfileCreated, profileCreatedMessage{
		EventID:    uuid.NewString(),
		UserID:     evt.UserID,
		Email:      evt.Email,
		OccurredAt: evt.At.UTC(),
	})
}

func (p *Publisher) PublishSignedIn(ctx context.Context, evt signin.SignedInEvent) error {
	return p.publishJSON(ctx, RoutingSignedIn, signedInMessage{
		EventID:    uuid.NewString(),
		UserID:     evt.UserID,
		Email:      evt.Email,
		NewProfile: evt.NewProfile,
		OccurredAt: evt.At.UTC(),
	})
}

// ---- internal ----

// dialer bounds the TCP dial by ctx and the AMQP handshake by dialTimeout.
// amqp091 clears the deadline once the connection is open.
func dialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Publisher) connect(ctx context.Context) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      dialer(ctx),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	// Declare topic exchange (idempotent).
	if err := ch.ExchangeDeclare(
		p.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.conn = conn
	p.ch = ch
	return nil
}

func (p *Publisher) ensureConnected(ctx context.Context) error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil {
		return nil
	}
	now := p.clock()
	if now.Before(p.retryAt) {
		return ErrBrokerBackoff
	}
	if err := p.connect(ctx); err != nil {
		p.retryAt = now.Add(redialBackoff)
		return err
	}
	p.retryAt = time.Time{}
	return nil
}

func (p *Publisher) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Ensure there is a deadline to avoid blocking forever.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, publishWait)
		defer cancel()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureConnected(ctx); err != nil {
		return err
	}

	// Drain stale confirms so results are not mixed up.
drain:
	for {
		select {
		case <-p.confirmCh:
		default:
			break drain
		}
	}

	// Not mandatory: sign-in events are fine to drop when nobody listens.
	if err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		p.resetConn()
		return fmt.Errorf("publish failed: %w", err)
	}

	select {
	case conf, ok := <-p.confirmCh:
		if !ok {
			p.resetConn()
			return fmt.Errorf("rabbitmq channel closed: key=%s", routingKey)
		}
		if !conf.Ack {
			return fmt.Errorf("rabbitmq nack: key=%s deliveryTag=%d", routingKey, conf.DeliveryTag)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rabbitmq publish timeout: key=%s: %w", routingKey, ctx.Err())
	}
}

func (p *Publisher) resetConn() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
