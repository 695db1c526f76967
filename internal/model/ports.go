package model

import (
	"context"
	"time"
)

// ── Transport Port Interfaces ──
// These decouple the subscriber state machine from the concrete pub/sub
// client (Redis). Tests drive the subscriber through in-memory fakes.

// Message is a raw payload received on a named channel.
type Message struct {
	Channel    string
	Payload    []byte
	ReceivedAt time.Time
}

// Transport opens subscribed sessions.
type Transport interface {
	// Dial connects and subscribes to every channel. It must not return a
	// session subscribed to only some of them.
	Dial(ctx context.Context, channels []string) (Session, error)

	// Addr identifies the remote endpoint for logs.
	Addr() string
}

// Session is one subscribed connection, owned by a single goroutine.
type Session interface {
	// Receive waits up to timeout for the next message. It returns nil, nil
	// when the timeout elapses with no traffic. Any error is connection-scoped.
	Receive(ctx context.Context, timeout time.Duration) (*Message, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}
