package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portfolio-blotter/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Redis pub/sub
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Channels      map[model.Topic]string

	// FIX client service
	FIXClientURL       string
	HTTPTimeout        time.Duration
	BootstrapExecLimit int

	// Listeners
	HTTPAddr    string
	MetricsAddr string

	// Subscriber timing
	PollTimeout    time.Duration
	ReconnectDelay time.Duration

	SnapshotPushInterval time.Duration

	LogLevel        string
	AlertWebhookURL string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env")
	}

	return &Config{
		RedisAddr:     redisAddr(),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		Channels: map[model.Topic]string{
			model.TopicPositions:  getEnv("CHANNEL_POSITIONS", "positions:updates"),
			model.TopicExecutions: getEnv("CHANNEL_EXECUTIONS", "executions:updates"),
			model.TopicOrders:     getEnv("CHANNEL_ORDERS", "orders:updates"),
			model.TopicMarketData: getEnv("CHANNEL_MARKETDATA", "marketdata:updates"),
		},

		FIXClientURL:       strings.TrimRight(getEnv("FIX_CLIENT_URL", "http://localhost:8081"), "/"),
		HTTPTimeout:        time.Duration(getEnvInt("HTTP_TIMEOUT_SEC", 5)) * time.Second,
		BootstrapExecLimit: getEnvInt("BOOTSTRAP_EXEC_LIMIT", 50),

		HTTPAddr:    httpAddr(),
		MetricsAddr: getEnv("METRICS_ADDR", ":9091"),

		PollTimeout:          time.Duration(getEnvInt("POLL_TIMEOUT_MS", 1000)) * time.Millisecond,
		ReconnectDelay:       time.Duration(getEnvInt("RECONNECT_DELAY_SEC", 5)) * time.Second,
		SnapshotPushInterval: time.Duration(getEnvInt("SNAPSHOT_PUSH_INTERVAL_MS", 1000)) * time.Millisecond,

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
		errs = append(errs, fmt.Errorf("REDIS_ADDR %q: %w", c.RedisAddr, err))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.RedisDB))
	}

	seen := make(map[string]model.Topic)
	for _, topic := range model.Topics {
		ch := c.Channels[topic]
		if ch == "" {
			errs = append(errs, fmt.Errorf("channel for %s is empty", topic))
			continue
		}
		if other, dup := seen[ch]; dup {
			errs = append(errs, fmt.Errorf("channel %q used by both %s and %s", ch, other, topic))
		}
		seen[ch] = topic
	}

	if u, err := url.Parse(c.FIXClientURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("FIX_CLIENT_URL %q is not an absolute URL", c.FIXClientURL))
	}
	if c.AlertWebhookURL != "" {
		if u, err := url.Parse(c.AlertWebhookURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("ALERT_WEBHOOK_URL %q is not an absolute URL", c.AlertWebhookURL))
		}
	}

	for name, d := range map[string]time.Duration{
		"POLL_TIMEOUT_MS":           c.PollTimeout,
		"RECONNECT_DELAY_SEC":       c.ReconnectDelay,
		"SNAPSHOT_PUSH_INTERVAL_MS": c.SnapshotPushInterval,
		"HTTP_TIMEOUT_SEC":          c.HTTPTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.BootstrapExecLimit <= 0 {
		errs = append(errs, fmt.Errorf("BOOTSTRAP_EXEC_LIMIT must be positive, got %d", c.BootstrapExecLimit))
	}

	return errors.Join(errs...)
}

// redisAddr prefers REDIS_ADDR and falls back to REDIS_HOST/REDIS_PORT.
func redisAddr() string {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		return v
	}
	return net.JoinHostPort(getEnv("REDIS_HOST", "localhost"), getEnv("REDIS_PORT", "6379"))
}

// httpAddr prefers HTTP_ADDR and falls back to DASH_PORT.
func httpAddr() string {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		return v
	}
	return ":" + getEnv("DASH_PORT", "8060")
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}
