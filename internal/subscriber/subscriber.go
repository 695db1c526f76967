// Package subscriber owns the pub/sub connection lifecycle of the blotter.
//
// A Subscriber dials the transport, subscribes to every ingest channel in
// one step, then polls for messages with a finite timeout so that Stop is
// observed between polls. Each message is decoded and applied to the sink.
// Decode and apply failures are per message; transport failures close the
// session and restart the connect cycle.
package subscriber

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"portfolio-blotter/internal/decoder"
	"portfolio-blotter/internal/logger"
	"portfolio-blotter/internal/model"
)

// State is the connection state of a Subscriber.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Drop reasons reported to OnDrop.
const (
	DropDecode  = "decode_error"
	DropRouting = "routing_miss"
	DropInvalid = "invalid_field"
)

// Sink receives decoded events. *portfolio.Aggregator implements it.
type Sink interface {
	Apply(ev model.Event) error
	SetConnected(v bool)
	Record(format string, args ...any)
}

// Config tunes the connect and poll cycle.
type Config struct {
	PollTimeout    time.Duration // default 1s
	ReconnectDelay time.Duration // default 5s
}

// Subscriber drives the transport session. The zero value is not usable;
// create one with New.
type Subscriber struct {
	transport model.Transport
	decoder   *decoder.Decoder
	sink      Sink
	cfg       Config

	state atomic.Int32

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	// Optional hooks, set before Start.
	OnStateChange func(from, to State)
	OnMessage     func(channel string, kind model.Kind, took time.Duration)
	OnDrop        func(channel, reason string)
	OnReconnect   func(attempt int, err error)
}

// New creates a Subscriber in the Disconnected state.
func New(t model.Transport, d *decoder.Decoder, sink Sink, cfg Config) *Subscriber {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Subscriber{
		transport: t,
		decoder:   d,
		sink:      sink,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// State returns the current connection state.
func (s *Subscriber) State() State { return State(s.state.Load()) }

// Start runs the subscriber on its own goroutine. Calling it again is a no-op.
func (s *Subscriber) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		if err := s.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[subscriber] stopped: %v", err)
		}
	}()
}

// Run blocks until ctx is cancelled or Stop is called. If the subscriber was
// already started it waits for that run to finish.
func (s *Subscriber) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		<-s.done
		return nil
	}
	defer close(s.done)
	return s.run(ctx)
}

// Stop asks the receive loop to exit at the next poll boundary and waits for
// the session to be released. It is idempotent and safe before Start.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.started.CompareAndSwap(false, true) {
		close(s.done)
		return
	}
	<-s.done
}

// Done is closed once the receive loop has exited.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) stopped(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Subscriber) run(ctx context.Context) error {
	channels := s.decoder.Channels()
	delay := backoff.NewConstantBackOff(s.cfg.ReconnectDelay)

	immediate := true
	attempt := 0
	for {
		if s.stopped(ctx) {
			s.setState(StateDisconnected)
			return ctx.Err()
		}
		if !immediate {
			if !s.wait(ctx, delay.NextBackOff()) {
				s.setState(StateDisconnected)
				return ctx.Err()
			}
		}

		attempt++
		s.setState(StateConnecting)
		sess, err := s.transport.Dial(ctx, channels)
		if err != nil {
			log.Printf("[subscriber] connect to %s failed (attempt %d): %v", s.transport.Addr(), attempt, err)
			s.sink.Record("Redis connection error: %v", err)
			if s.OnReconnect != nil {
				s.OnReconnect(attempt, err)
			}
			immediate = false
			continue
		}

		attempt = 0
		s.setState(StateSubscribed)
		s.sink.SetConnected(true)
		s.sink.Record("Connected to Redis at %s", s.transport.Addr())
		log.Printf("[subscriber] subscribed to %v", channels)

		err = s.consume(ctx, sess)
		if cerr := sess.Close(); cerr != nil {
			log.Printf("[subscriber] close session: %v", cerr)
		}
		s.sink.SetConnected(false)

		if err == nil {
			s.setState(StateDisconnected)
			return ctx.Err()
		}

		log.Printf("[subscriber] connection lost: %v", err)
		s.sink.Record("Redis connection lost: %v", err)
		s.setState(StateConnecting)
		immediate = true
	}
}

// consume polls sess until stop (nil) or a transport error.
func (s *Subscriber) consume(ctx context.Context, sess model.Session) error {
	// Polls are not cut short by cancellation; stop is checked between them.
	pollCtx := context.WithoutCancel(ctx)
	for {
		if s.stopped(ctx) {
			return nil
		}
		msg, err := sess.Receive(pollCtx, s.cfg.PollTimeout)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}
		s.handle(pollCtx, msg)
	}
}

func (s *Subscriber) handle(ctx context.Context, msg *model.Message) {
	start := time.Now()
	received := msg.ReceivedAt
	if received.IsZero() {
		received = start
	}
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(msg.Channel, received))

	d, err := s.decoder.Decode(msg.Channel, msg.Payload)
	if err != nil {
		if errors.Is(err, model.ErrRoutingMiss) {
			s.drop(msg.Channel, DropRouting)
			return
		}
		slog.Warn("[subscriber] dropped undecodable message",
			append(logger.LogWithTrace(ctx), slog.String("channel", msg.Channel), slog.Any("error", err))...)
		s.sink.Record("Error parsing message on %s: %v", msg.Channel, err)
		s.drop(msg.Channel, DropDecode)
		return
	}

	if err := s.sink.Apply(d.Event); err != nil {
		// The sink records its own rejections.
		slog.Debug("[subscriber] update rejected",
			append(logger.LogWithTrace(ctx), slog.String("kind", string(d.Kind)), slog.Any("error", err))...)
		s.drop(msg.Channel, DropInvalid)
		return
	}

	if s.OnMessage != nil {
		s.OnMessage(msg.Channel, d.Kind, time.Since(start))
	}
}

func (s *Subscriber) drop(channel, reason string) {
	if s.OnDrop != nil {
		s.OnDrop(channel, reason)
	}
}

// wait sleeps for d unless stop or cancellation comes first.
func (s *Subscriber) wait(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Subscriber) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}
	if s.OnStateChange != nil {
		s.OnStateChange(from, to)
	}
}
