// Package gateway serves read-only portfolio views over REST and
// WebSocket, plus the outbound market-data subscribe action.
package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"portfolio-blotter/internal/fixclient"
	"portfolio-blotter/internal/model"
	"portfolio-blotter/internal/portfolio"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Reader is the read side of the aggregator used by the REST views.
type Reader interface {
	SnapshotSource
	Positions() []model.Position
	Executions() []model.Execution
	Orders() []model.Order
	Quotes() []model.Quote
	Summary() portfolio.Summary
	DiagnosticLog() []string
	Connected() bool
	LastUpdate() time.Time
}

// Provider forwards subscribe requests to the market-data provider.
type Provider interface {
	SubscribeMarketData(ctx context.Context, symbols []string) (*fixclient.SubscribeResult, error)
}

// Status is the body of GET /api/status.
type Status struct {
	Connected       bool      `json:"connected"`
	SubscriberState string    `json:"subscriberState,omitempty"`
	FIXBreaker      string    `json:"fixBreaker,omitempty"`
	LastUpdate      time.Time `json:"lastUpdate"`
	WSClients       int       `json:"wsClients"`
	Uptime          string    `json:"uptime"`
	ApplyLatencyP50 float64   `json:"applyLatencyP50Ms"`
	ApplyLatencyP95 float64   `json:"applyLatencyP95Ms"`
	ApplyLatencyP99 float64   `json:"applyLatencyP99Ms"`
}

// API holds the dependencies of the HTTP handlers.
type API struct {
	Reader   Reader
	Provider Provider
	Hub      *Hub
	Latency  *LatencyTracker
	Started  time.Time

	// State reports the subscriber state, optional.
	State func() string
	// Breaker reports the provider circuit breaker state, optional.
	Breaker func() string
	// OnSubscribe is called with "ok", "error" or "rejected", optional.
	OnSubscribe func(result string)
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, api *API) {
	if api.Hub != nil {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				log.Printf("[gateway] ws upgrade error: %v", err)
				return
			}
			api.Hub.HandleWSRequest(conn)
		})
	}

	mux.HandleFunc("/api/snapshot", readOnly(func(r *http.Request) any { return api.Reader.Snapshot() }))
	mux.HandleFunc("/api/positions", readOnly(func(r *http.Request) any {
		positions := api.Reader.Positions()
		if r.URL.Query().Get("open") == "true" {
			open := positions[:0]
			for _, p := range positions {
				if !p.Closed() {
					open = append(open, p)
				}
			}
			positions = open
		}
		return positions
	}))
	mux.HandleFunc("/api/executions", readOnly(func(r *http.Request) any {
		execs := api.Reader.Executions()
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 && n < len(execs) {
			execs = execs[:n]
		}
		return execs
	}))
	mux.HandleFunc("/api/orders", readOnly(func(r *http.Request) any { return api.Reader.Orders() }))
	mux.HandleFunc("/api/quotes", readOnly(func(r *http.Request) any { return api.Reader.Quotes() }))
	mux.HandleFunc("/api/summary", readOnly(func(r *http.Request) any { return api.Reader.Summary() }))
	mux.HandleFunc("/api/log", readOnly(func(r *http.Request) any { return api.Reader.DiagnosticLog() }))
	mux.HandleFunc("/api/status", readOnly(func(r *http.Request) any { return api.status() }))

	mux.HandleFunc("/api/subscribe", api.handleSubscribe)
}

func (api *API) status() Status {
	s := Status{
		Connected:  api.Reader.Connected(),
		LastUpdate: api.Reader.LastUpdate(),
	}
	if api.State != nil {
		s.SubscriberState = api.State()
	}
	if api.Breaker != nil {
		s.FIXBreaker = api.Breaker()
	}
	if api.Hub != nil {
		s.WSClients = api.Hub.ClientCount()
	}
	if !api.Started.IsZero() {
		s.Uptime = time.Since(api.Started).Round(time.Second).String()
	}
	if api.Latency != nil {
		s.ApplyLatencyP50, s.ApplyLatencyP95, s.ApplyLatencyP99 = api.Latency.Percentiles()
	}
	return s
}

// readOnly wraps a GET view with CORS and JSON encoding.
func readOnly(view func(r *http.Request) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			return
		case http.MethodGet, http.MethodHead:
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		writeJSON(w, http.StatusOK, view(r))
	}
}

// subscribeRequest accepts symbols as an array or a comma-separated string.
type subscribeRequest struct {
	Symbols json.RawMessage `json:"symbols"`
}

type subscribeResponse struct {
	Status  string   `json:"status"`
	Symbols []string `json:"symbols,omitempty"`
	Message string   `json:"message"`
}

// handleSubscribe serves POST /api/subscribe.
func (api *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		api.subscribeResult("rejected")
		writeJSON(w, http.StatusBadRequest, subscribeResponse{Status: "error", Message: "invalid JSON"})
		return
	}
	raw := parseSymbols(req.Symbols)
	if len(raw) == 0 {
		api.subscribeResult("rejected")
		writeJSON(w, http.StatusBadRequest, subscribeResponse{Status: "error", Message: "Please enter symbols separated by commas"})
		return
	}
	if api.Provider == nil {
		api.subscribeResult("error")
		writeJSON(w, http.StatusServiceUnavailable, subscribeResponse{Status: "error", Message: "market-data subscribe is not configured"})
		return
	}

	res, err := api.Provider.SubscribeMarketData(r.Context(), raw)
	if err != nil {
		var oerr *model.OutboundRequestError
		switch {
		case errors.Is(err, fixclient.ErrNoSymbols):
			api.subscribeResult("rejected")
			writeJSON(w, http.StatusBadRequest, subscribeResponse{Status: "error", Message: "No valid symbols entered"})
		case errors.As(err, &oerr) && oerr.Status != 0:
			api.subscribeResult("error")
			writeJSON(w, http.StatusBadGateway, subscribeResponse{
				Status:  "error",
				Message: "Error: " + strconv.Itoa(oerr.Status) + " - " + oerr.Body,
			})
		default:
			api.subscribeResult("error")
			writeJSON(w, http.StatusBadGateway, subscribeResponse{Status: "error", Message: "Failed to subscribe: " + err.Error()})
		}
		return
	}

	api.subscribeResult("ok")
	writeJSON(w, http.StatusOK, subscribeResponse{
		Status:  "ok",
		Symbols: res.Symbols,
		Message: "Subscribed to: " + strings.Join(res.Symbols, ", "),
	})
}

func (api *API) subscribeResult(result string) {
	if api.OnSubscribe != nil {
		api.OnSubscribe(result)
	}
}

// parseSymbols reads a JSON string or array of strings. Anything else
// yields nil.
func parseSymbols(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return []string{s}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] encode response: %v", err)
	}
}
