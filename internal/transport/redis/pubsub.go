// Package redis is the Redis pub/sub transport of the blotter subscriber.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"portfolio-blotter/internal/model"
)

// Config configures the pub/sub transport.
type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration // bounds ping and subscription confirmation, default 5s
}

// Transport dials subscribed Redis sessions. Every Dial uses a fresh client
// so a broken connection is never reused after a reconnect.
type Transport struct {
	cfg Config
}

// NewTransport creates a Transport. It does not connect.
func NewTransport(cfg Config) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &Transport{cfg: cfg}
}

// Addr returns the configured server address.
func (t *Transport) Addr() string { return t.cfg.Addr }

// Dial connects, pings and subscribes to every channel. It returns only
// after the server has confirmed all subscriptions; on any failure the
// connection is closed and a *model.TransportError is returned.
func (t *Transport) Dial(ctx context.Context, channels []string) (model.Session, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        t.cfg.Addr,
		Password:    t.cfg.Password,
		DB:          t.cfg.DB,
		DialTimeout: t.cfg.DialTimeout,
		MaxRetries:  -1,
	})

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(dialCtx).Err(); err != nil {
		client.Close()
		return nil, &model.TransportError{Op: "dial", Addr: t.cfg.Addr, Err: fmt.Errorf("redis ping: %w", err)}
	}

	pubsub := client.Subscribe(dialCtx, channels...)
	s := &session{client: client, pubsub: pubsub, addr: t.cfg.Addr}
	if err := s.confirm(dialCtx, channels); err != nil {
		s.Close()
		return nil, &model.TransportError{Op: "subscribe", Addr: t.cfg.Addr, Err: err}
	}

	log.Printf("[redis-pubsub] subscribed to %d channels on %s", len(channels), t.cfg.Addr)
	return s, nil
}

type session struct {
	client *goredis.Client
	pubsub *goredis.PubSub
	addr   string

	// messages that raced ahead of the last subscription confirmation
	pending []*model.Message
}

// confirm waits for one subscribe reply per channel.
func (s *session) confirm(ctx context.Context, channels []string) error {
	want := make(map[string]bool, len(channels))
	for _, ch := range channels {
		want[ch] = true
	}

	for len(want) > 0 {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(5 * time.Second)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("subscription not confirmed for %d channels", len(want))
		}

		msg, err := s.pubsub.ReceiveTimeout(ctx, remaining)
		if err != nil {
			return fmt.Errorf("confirm subscription: %w", err)
		}
		switch m := msg.(type) {
		case *goredis.Subscription:
			if m.Kind == "subscribe" {
				delete(want, m.Channel)
			}
		case *goredis.Message:
			s.pending = append(s.pending, toMessage(m))
		}
	}
	return nil
}

// Receive returns nil, nil when timeout elapses with no message.
func (s *session) Receive(ctx context.Context, timeout time.Duration) (*model.Message, error) {
	if len(s.pending) > 0 {
		m := s.pending[0]
		s.pending = s.pending[1:]
		return m, nil
	}

	for {
		msg, err := s.pubsub.ReceiveTimeout(ctx, timeout)
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			return nil, &model.TransportError{Op: "receive", Addr: s.addr, Err: err}
		}

		switch m := msg.(type) {
		case *goredis.Message:
			return toMessage(m), nil
		case *goredis.Subscription:
			if m.Kind == "unsubscribe" {
				return nil, &model.TransportError{
					Op: "receive", Addr: s.addr,
					Err: fmt.Errorf("unsubscribed from %s", m.Channel),
				}
			}
		case *goredis.Pong:
			// keepalive
		}
	}
}

func (s *session) Close() error {
	perr := s.pubsub.Close()
	cerr := s.client.Close()
	if perr != nil && !errors.Is(perr, goredis.ErrClosed) {
		return perr
	}
	if cerr != nil && !errors.Is(cerr, goredis.ErrClosed) {
		return cerr
	}
	return nil
}

func toMessage(m *goredis.Message) *model.Message {
	return &model.Message{
		Channel:    m.Channel,
		Payload:    []byte(m.Payload),
		ReceivedAt: time.Now(),
	}
}

// isTimeout reports a read deadline that expired without data.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
