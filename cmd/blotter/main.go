// Command blotter aggregates live portfolio state from Redis pub/sub and
// serves it to dashboard readers over REST and WebSocket.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"

	"portfolio-blotter/config"
	"portfolio-blotter/internal/bootstrap"
	"portfolio-blotter/internal/decoder"
	"portfolio-blotter/internal/fixclient"
	"portfolio-blotter/internal/gateway"
	"portfolio-blotter/internal/logger"
	"portfolio-blotter/internal/metrics"
	"portfolio-blotter/internal/model"
	"portfolio-blotter/internal/notification"
	"portfolio-blotter/internal/portfolio"
	"portfolio-blotter/internal/subscriber"
	redistransport "portfolio-blotter/internal/transport/redis"
)

func main() {
	cfg := config.Load()
	logger.Init("blotter", logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[blotter] invalid configuration: %v", err)
	}
	log.Printf("[blotter] starting (redis=%s fix=%s http=%s)", cfg.RedisAddr, cfg.FIXClientURL, cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	started := time.Now()

	// Observability
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, reg, health)
	metricsSrv.Start()

	probe := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer probe.Close()
	health.StartLivenessChecker(ctx, probe, 15*time.Second)

	var notifier notification.Notifier = notification.NewLogNotifier()
	if cfg.AlertWebhookURL != "" {
		notifier = notification.Multi{notifier, notification.NewWebhookNotifier(cfg.AlertWebhookURL, "blotter")}
	}
	watcher := notification.NewConnectivityWatcher(notifier, "Redis")

	// Engine
	agg := portfolio.New()
	latency := gateway.NewLatencyTracker(4096)

	fix := fixclient.New(fixclient.Config{
		BaseURL: cfg.FIXClientURL,
		Timeout: cfg.HTTPTimeout,
		OnBreakerChange: func(_, to fixclient.BreakerState) {
			m.FIXBreakerState.Set(float64(to))
			health.SetFIXBreaker(to.String())
		},
	})

	// Ingest
	transport := redistransport.NewTransport(redistransport.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	// Live events wait behind the gate until the bootstrap snapshot is applied.
	gate := bootstrap.NewGate(agg, bootstrap.DefaultHoldLimit)
	sub := subscriber.New(transport, decoder.New(cfg.Channels), gate, subscriber.Config{
		PollTimeout:    cfg.PollTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	sub.OnStateChange = func(from, to subscriber.State) {
		m.SubscriberState.Set(float64(to))
		up := to == subscriber.StateSubscribed
		if up {
			m.RedisConnected.Set(1)
		} else {
			m.RedisConnected.Set(0)
		}
		health.SetRedisConnected(up)
		switch {
		case up:
			watcher.Report(true, "")
		case from == subscriber.StateSubscribed && to == subscriber.StateConnecting:
			watcher.Report(false, "subscription to "+transport.Addr()+" lost")
		}
	}
	sub.OnMessage = func(channel string, kind model.Kind, took time.Duration) {
		m.MessagesTotal.WithLabelValues(channel, string(kind)).Inc()
		m.ApplyDur.Observe(took.Seconds())
		latency.Observe(took)
		health.SetLastMessageTime(time.Now())
	}
	sub.OnDrop = func(channel, reason string) {
		m.DroppedTotal.WithLabelValues(channel, reason).Inc()
	}
	sub.OnReconnect = func(attempt int, err error) {
		m.Reconnects.Inc()
		watcher.Report(false, err.Error())
	}

	// Readers
	hub := gateway.NewHub(agg, fix, cfg.SnapshotPushInterval)
	hub.OnPush = func(int) { m.SnapshotsPushed.Inc() }
	hub.OnClientCount = func(n int) { m.WSClients.Set(float64(n)) }

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, &gateway.API{
		Reader:   agg,
		Provider: fix,
		Hub:      hub,
		Latency:  latency,
		Started:  started,
		State:    func() string { return sub.State().String() },
		Breaker:  func() string { return fix.BreakerState().String() },
		OnSubscribe: func(result string) {
			m.SubscribeRequests.WithLabelValues(result).Inc()
		},
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() { watcher.Run(ctx) })
	wg.Go(func() { hub.Run(ctx) })

	sub.Start(ctx)

	wg.Go(func() {
		loadCtx, cancel := context.WithTimeout(ctx, 4*cfg.HTTPTimeout)
		defer cancel()
		res := bootstrap.NewLoader(fix, agg, cfg.BootstrapExecLimit).Load(loadCtx)
		replayed := gate.Open()
		slog.Info("bootstrap complete",
			"positions", res.Positions,
			"executions", res.Executions,
			"orders", res.Orders,
			"quotes", res.Quotes,
			"errors", len(res.Errors),
			"replayed", replayed,
		)
	})

	wg.Go(func() {
		log.Printf("[blotter] serving at http://localhost%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[blotter] server error: %v", err)
			stop()
		}
	})

	<-ctx.Done()
	log.Println("[blotter] shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go sub.Stop()
	select {
	case <-sub.Done():
	case <-shutdownCtx.Done():
		log.Printf("[blotter] subscriber did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[blotter] http shutdown: %v", err)
	}
	metricsSrv.Stop(shutdownCtx)
	wg.Wait()

	log.Println("[blotter] stopped")
}
