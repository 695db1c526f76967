package bootstrap

import (
	"log"
	"sync"

	"portfolio-blotter/internal/model"
)

// DefaultHoldLimit bounds the live events held while bootstrap runs.
const DefaultHoldLimit = 10000

// LiveSink is the engine side of the live stream. *portfolio.Aggregator
// implements it.
type LiveSink interface {
	Apply(ev model.Event) error
	SetConnected(v bool)
	Record(format string, args ...any)
}

// Gate sits between the subscriber and the engine. Until Open is called it
// holds live events instead of applying them, so the bootstrap snapshot is
// applied first and live updates land on top of it in receive order.
// Connectivity and log calls always pass straight through.
type Gate struct {
	next  LiveSink
	limit int

	mu      sync.Mutex
	open    bool
	held    []model.Event
	dropped int
}

// NewGate creates a closed Gate holding at most limit events.
func NewGate(next LiveSink, limit int) *Gate {
	if limit <= 0 {
		limit = DefaultHoldLimit
	}
	return &Gate{next: next, limit: limit}
}

// Apply forwards ev once the gate is open and holds it otherwise. Events
// past the hold limit are dropped and counted.
func (g *Gate) Apply(ev model.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return g.next.Apply(ev)
	}
	if len(g.held) >= g.limit {
		g.dropped++
		return nil
	}
	g.held = append(g.held, ev)
	return nil
}

func (g *Gate) SetConnected(v bool) { g.next.SetConnected(v) }

func (g *Gate) Record(format string, args ...any) { g.next.Record(format, args...) }

// Open applies the held events in arrival order and lets later events
// through directly. It returns the number of events replayed. Calling it
// again is a no-op.
func (g *Gate) Open() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return 0
	}
	n := len(g.held)
	for _, ev := range g.held {
		// Rejections are recorded by the engine itself.
		_ = g.next.Apply(ev)
	}
	g.held = nil
	g.open = true

	if n > 0 || g.dropped > 0 {
		g.next.Record("Applied %d live updates received during startup", n)
	}
	if g.dropped > 0 {
		g.next.Record("Dropped %d live updates received during startup", g.dropped)
		log.Printf("[bootstrap] hold limit %d reached, dropped %d live updates", g.limit, g.dropped)
	}
	return n
}

// Held returns the number of events waiting for Open.
func (g *Gate) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
