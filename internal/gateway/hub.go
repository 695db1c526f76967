package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"portfolio-blotter/internal/portfolio"
)

// SnapshotSource is the read side of the aggregator.
type SnapshotSource interface {
	Snapshot() portfolio.Snapshot
}

// Hub pushes a full portfolio snapshot to every WebSocket client on a fixed
// interval and right after a client connects.
type Hub struct {
	src      SnapshotSource
	provider Provider
	interval time.Duration

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	// Optional hooks, set before Run.
	OnPush        func(clients int)
	OnClientCount func(n int)
}

// NewHub creates a Hub. provider may be nil, in which case SUBSCRIBE
// requests over the socket are answered with an error.
func NewHub(src SnapshotSource, provider Provider, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = time.Second
	}
	return &Hub{
		src:      src,
		provider: provider,
		interval: interval,
		clients:  make(map[*Client]bool),
	}
}

// snapshotEnvelope is the server → client push.
type snapshotEnvelope struct {
	Type string             `json:"type"` // "snapshot"
	Seq  int64              `json:"seq"`
	TS   string             `json:"ts"`
	Data portfolio.Snapshot `json:"data"`
}

// Run broadcasts snapshots until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			h.Broadcast()
		}
	}
}

// Broadcast sends the current snapshot to all clients. Slow clients whose
// buffer is full skip this push.
func (h *Hub) Broadcast() {
	msg, err := h.envelope()
	if err != nil {
		log.Printf("[gateway] snapshot marshal error: %v", err)
		return
	}

	h.mu.RLock()
	n := len(h.clients)
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	h.mu.RUnlock()

	if h.OnPush != nil {
		h.OnPush(n)
	}
}

func (h *Hub) envelope() ([]byte, error) {
	snap := h.src.Snapshot()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	return json.Marshal(snapshotEnvelope{
		Type: "snapshot",
		Seq:  seq,
		TS:   time.Now().UTC().Format(time.RFC3339Nano),
		Data: snap,
	})
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 16),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	if msg, err := h.envelope(); err == nil {
		client.send <- msg
	}

	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters c and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// sendTo queues msg for c unless c has been removed or is backed up.
func (h *Hub) sendTo(c *Client, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
