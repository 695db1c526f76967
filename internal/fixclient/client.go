// Package fixclient is the HTTP client for the FIX client service, which
// serves the bootstrap state and forwards market-data subscriptions to the
// quote provider.
package fixclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"portfolio-blotter/internal/model"
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration // per request, default 5s
	SubscribeRPS float64       // outbound subscribe rate, default 2/s
	MaxFailures  int           // breaker threshold, default 5
	ResetTimeout time.Duration // breaker cool-down, default 10s

	// OnBreakerChange is called after every breaker transition, optional.
	OnBreakerChange func(from, to BreakerState)
}

// Client talks to the FIX client REST API.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *Breaker
	limiter *rate.Limiter
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.SubscribeRPS <= 0 {
		cfg.SubscribeRPS = 2
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}

	b := NewBreaker(cfg.MaxFailures, cfg.ResetTimeout)
	b.OnStateChange = func(from, to BreakerState) {
		log.Printf("[fixclient] circuit %s -> %s", from, to)
		if cfg.OnBreakerChange != nil {
			cfg.OnBreakerChange(from, to)
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: b,
		limiter: rate.NewLimiter(rate.Limit(cfg.SubscribeRPS), 1),
	}
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string { return c.baseURL }

// BreakerState exposes the breaker for health reporting.
func (c *Client) BreakerState() BreakerState { return c.breaker.State() }

// PortfolioSummary is the body of GET /api/portfolio/summary. Only the
// position list is consumed.
type PortfolioSummary struct {
	Positions []model.PositionUpdate `json:"positions"`
}

// MarketDataSnapshot is the body of GET /api/portfolio/market-data.
type MarketDataSnapshot struct {
	Quotes map[string]model.MarketQuote `json:"quotes"`
}

// SubscribeResult is the provider's answer to a subscribe request.
type SubscribeResult struct {
	Symbols []string `json:"symbols"`
	Status  string   `json:"status,omitempty"`
	Message string   `json:"message,omitempty"`
}

// PortfolioSummary fetches the current positions.
func (c *Client) PortfolioSummary(ctx context.Context) (*PortfolioSummary, error) {
	var out PortfolioSummary
	if err := c.getJSON(ctx, "/api/portfolio/summary", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Executions fetches up to limit recent executions.
func (c *Client) Executions(ctx context.Context, limit int) ([]model.Execution, error) {
	path := "/api/executions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []model.Execution
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Orders fetches every known order.
func (c *Client) Orders(ctx context.Context) ([]model.OrderUpdate, error) {
	var out []model.OrderUpdate
	if err := c.getJSON(ctx, "/api/orders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarketData fetches the latest quote per symbol.
func (c *Client) MarketData(ctx context.Context) (map[string]model.MarketQuote, error) {
	var out MarketDataSnapshot
	if err := c.getJSON(ctx, "/api/portfolio/market-data", &out); err != nil {
		return nil, err
	}
	if out.Quotes == nil {
		out.Quotes = map[string]model.MarketQuote{}
	}
	return out.Quotes, nil
}

// SubscribeMarketData asks the provider to stream quotes for symbols.
// Symbols are normalized first; an empty set is rejected without a request.
// Failures are returned as *model.OutboundRequestError and never retried.
func (c *Client) SubscribeMarketData(ctx context.Context, symbols []string) (*SubscribeResult, error) {
	syms := NormalizeSymbols(symbols)
	if len(syms) == 0 {
		return nil, ErrNoSymbols
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.requestError(http.MethodPost, "/api/portfolio/market-data/subscribe", err)
	}

	body, err := json.Marshal(map[string][]string{"symbols": syms})
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, http.MethodPost, "/api/portfolio/market-data/subscribe", body)
	if err != nil {
		return nil, err
	}

	res := &SubscribeResult{}
	if len(bytes.TrimSpace(raw)) > 0 {
		// The provider's body format is informational only.
		_ = json.Unmarshal(raw, res)
	}
	if len(res.Symbols) == 0 {
		res.Symbols = syms
	}
	log.Printf("[fixclient] subscribed to %s", strings.Join(syms, ", "))
	return res, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return c.requestError(http.MethodGet, path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// do runs one request through the breaker. Non-2xx responses and transport
// failures come back as *model.OutboundRequestError.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var raw []byte
	err := c.breaker.Execute(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return c.requestError(method, path, err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return c.requestError(method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return c.requestError(method, path, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &model.OutboundRequestError{
				Method: method, URL: c.baseURL + path,
				Status: resp.StatusCode, Body: strings.TrimSpace(string(data)),
			}
		}
		raw = data
		return nil
	}, breakerCounts)

	if errors.Is(err, ErrCircuitOpen) {
		return nil, c.requestError(method, path, err)
	}
	return raw, err
}

// breakerCounts trips on unreachable or failing servers, not client errors.
func breakerCounts(err error) bool {
	var oerr *model.OutboundRequestError
	if errors.As(err, &oerr) {
		return oerr.Status == 0 || oerr.Status >= 500
	}
	return true
}

func (c *Client) requestError(method, path string, err error) *model.OutboundRequestError {
	u := c.baseURL + path
	if parsed, perr := url.Parse(u); perr == nil {
		u = parsed.Redacted()
	}
	return &model.OutboundRequestError{Method: method, URL: u, Err: err}
}
