package metrics

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the blotter.
type Metrics struct {
	MessagesTotal   *prometheus.CounterVec // labels: channel, kind
	DroppedTotal    *prometheus.CounterVec // labels: channel, reason
	ApplyDur        prometheus.Histogram
	Reconnects      prometheus.Counter
	RedisConnected  prometheus.Gauge
	SubscriberState prometheus.Gauge // 0=disconnected, 1=connecting, 2=subscribed

	// Outbound subscribe action
	SubscribeRequests *prometheus.CounterVec // labels: result=ok|error|rejected
	FIXBreakerState   prometheus.Gauge       // 0=closed, 1=open, 2=half-open

	// Snapshot readers
	WSClients       prometheus.Gauge
	SnapshotsPushed prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blotter_messages_applied_total",
			Help: "Pub/sub messages decoded and applied",
		}, []string{"channel", "kind"}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blotter_messages_dropped_total",
			Help: "Pub/sub messages dropped (decode error, routing miss, invalid field)",
		}, []string{"channel", "reason"}),
		ApplyDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blotter_apply_duration_seconds",
			Help:    "Decode plus apply latency per message",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blotter_redis_reconnect_failures_total",
			Help: "Failed Redis connect or subscribe attempts",
		}),
		RedisConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blotter_redis_connected",
			Help: "Redis subscription state (0=down, 1=subscribed)",
		}),
		SubscriberState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blotter_subscriber_state",
			Help: "Subscriber state (0=disconnected, 1=connecting, 2=subscribed)",
		}),
		SubscribeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blotter_market_data_subscribe_requests_total",
			Help: "Outbound market-data subscribe requests by result",
		}, []string{"result"}),
		FIXBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blotter_fix_client_circuit_breaker_state",
			Help: "FIX client circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blotter_ws_clients",
			Help: "Connected WebSocket snapshot readers",
		}),
		SnapshotsPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blotter_snapshots_pushed_total",
			Help: "Snapshot broadcasts to WebSocket readers",
		}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.DroppedTotal,
		m.ApplyDur,
		m.Reconnects,
		m.RedisConnected,
		m.SubscriberState,
		m.SubscribeRequests,
		m.FIXBreakerState,
		m.WSClients,
		m.SnapshotsPushed,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected  bool      `json:"redis_connected"`
	LastMessageTime time.Time `json:"last_message_time"`
	FIXBreaker      string    `json:"fix_breaker"`

	// Liveness probe results
	RedisPingOK    bool      `json:"redis_ping_ok"`
	RedisLatencyMs float64   `json:"redis_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		FIXBreaker: "closed",
		now:        time.Now,
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastMessageTime(t time.Time) {
	h.mu.Lock()
	h.LastMessageTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetFIXBreaker(state string) {
	h.mu.Lock()
	h.FIXBreaker = state
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and reachability.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisPingOK = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker pings Redis every interval until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.CheckRedis(probeCtx, rdb)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The blotter keeps serving a stale
// snapshot while Redis is down, so that state is reported as degraded.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || h.FIXBreaker == "open" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	msgAge := ""
	lastMsg := ""
	if !h.LastMessageTime.IsZero() {
		msgAge = h.now().Sub(h.LastMessageTime).Round(time.Millisecond).String()
		lastMsg = h.LastMessageTime.Format(time.RFC3339)
	}
	lastCheck := ""
	if !h.LastCheckAt.IsZero() {
		lastCheck = h.LastCheckAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisPingOK     bool    `json:"redis_ping_ok"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		LastMessageTime string  `json:"last_message_time"`
		MessageAge      string  `json:"message_age"`
		FIXBreaker      string  `json:"fix_breaker"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisPingOK:     h.RedisPingOK,
		RedisLatencyMs:  h.RedisLatencyMs,
		LastMessageTime: lastMsg,
		MessageAge:      msgAge,
		FIXBreaker:      h.FIXBreaker,
		LastCheckAt:     lastCheck,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server for the metrics in g.
func NewServer(addr string, g prometheus.Gatherer, health *HealthStatus) *Server {
	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           Handler(g, health),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the /metrics and /healthz mux.
func Handler(g prometheus.Gatherer, health *HealthStatus) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)
	return mux
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
