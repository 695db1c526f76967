package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.MessagesTotal.WithLabelValues("positions:updates", "POSITION_UPDATE").Inc()
	m.DroppedTotal.WithLabelValues("marketdata:updates", "decode_error").Add(2)
	m.RedisConnected.Set(1)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["blotter_messages_applied_total"])
	assert.Equal(t, 2.0, values["blotter_messages_dropped_total"])
	assert.Equal(t, 1.0, values["blotter_redis_connected"])

	// A second registry must not collide.
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestHandler_ExposesMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Reconnects.Inc()

	h := NewHealthStatus()
	h.SetRedisConnected(true)
	srv := httptest.NewServer(Handler(reg, h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "blotter_redis_reconnect_failures_total 1"))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, true, status["redis_connected"])
}

func TestHealth_DegradedWhenRedisDown(t *testing.T) {
	h := NewHealthStatus()
	fixed := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }
	h.StartedAt = fixed.Add(-time.Minute)
	h.SetLastMessageTime(fixed.Add(-1500 * time.Millisecond))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status["status"])
	assert.Equal(t, "1.5s", status["message_age"])
	assert.Equal(t, "1m0s", status["uptime"])
}

func TestHealth_DegradedWhenBreakerOpen(t *testing.T) {
	h := NewHealthStatus()
	h.SetRedisConnected(true)
	h.SetFIXBreaker("open")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
