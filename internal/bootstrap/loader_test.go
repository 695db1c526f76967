package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-blotter/internal/fixclient"
	"portfolio-blotter/internal/model"
	"portfolio-blotter/internal/portfolio"
)

type fakeSource struct {
	summary *fixclient.PortfolioSummary
	execs   []model.Execution
	orders  []model.OrderUpdate
	quotes  map[string]model.MarketQuote
	err     map[string]error
	limit   int
}

func (f *fakeSource) PortfolioSummary(context.Context) (*fixclient.PortfolioSummary, error) {
	return f.summary, f.err["summary"]
}

func (f *fakeSource) Executions(_ context.Context, limit int) ([]model.Execution, error) {
	f.limit = limit
	return f.execs, f.err["executions"]
}

func (f *fakeSource) Orders(context.Context) ([]model.OrderUpdate, error) {
	return f.orders, f.err["orders"]
}

func (f *fakeSource) MarketData(context.Context) (map[string]model.MarketQuote, error) {
	return f.quotes, f.err["marketdata"]
}

func (f *fakeSource) BaseURL() string { return "http://fix:8081" }

func hasEntry(log []string, substr string) bool {
	for _, e := range log {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestLoader_AppliesEverything(t *testing.T) {
	src := &fakeSource{
		summary: &fixclient.PortfolioSummary{Positions: []model.PositionUpdate{
			{Symbol: "AAPL", Quantity: "100", AvgCost: "150", UnrealizedPnL: "7"},
			{Symbol: "", Quantity: "1"},
		}},
		execs:  []model.Execution{{ExecID: "E1"}, {ExecID: "E2"}},
		orders: []model.OrderUpdate{{ClOrdID: "C1", Status: "NEW"}},
		quotes: map[string]model.MarketQuote{
			"MSFT": {Price: "410"},
			"BAD":  {Symbol: "BAD", Price: "n/a"},
		},
	}
	agg := portfolio.New()

	res := NewLoader(src, agg, 0).Load(context.Background())

	assert.Equal(t, 50, src.limit)
	assert.Equal(t, 1, res.Positions)
	assert.Equal(t, 2, res.Executions)
	assert.Equal(t, 1, res.Orders)
	assert.Equal(t, 1, res.Quotes)
	assert.Empty(t, res.Errors)

	p, ok := agg.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 7.0, p.UnrealizedPnL.Or(0), "bootstrap records are stored as sent")

	_, ok = agg.Quote("MSFT")
	assert.True(t, ok, "map key fills a missing symbol")

	execs := agg.Executions()
	require.Len(t, execs, 2)
	assert.Equal(t, model.Text("E2"), execs[0].ExecID)

	log := agg.DiagnosticLog()
	assert.True(t, hasEntry(log, "Loaded 2 positions from API"))
	assert.True(t, hasEntry(log, "Loaded 2 executions from API"))
	assert.True(t, hasEntry(log, "Loaded 1 orders from API"))
	assert.True(t, hasEntry(log, "Loaded market data for 2 symbols"))
}

func TestLoader_ToleratesFailingEndpoints(t *testing.T) {
	src := &fakeSource{
		orders: []model.OrderUpdate{{ClOrdID: "C1"}},
		err: map[string]error{
			"summary":    &model.OutboundRequestError{Method: "GET", URL: "x", Status: 500},
			"executions": &model.OutboundRequestError{Method: "GET", URL: "x", Err: errors.New("refused")},
			"marketdata": &model.OutboundRequestError{Method: "GET", URL: "x", Status: 404},
		},
	}
	agg := portfolio.New()

	res := NewLoader(src, agg, 10).Load(context.Background())

	assert.Len(t, res.Errors, 3)
	assert.Equal(t, 1, res.Orders)
	assert.Empty(t, agg.Positions())

	log := agg.DiagnosticLog()
	assert.True(t, hasEntry(log, "Could not fetch market data"))
	assert.True(t, hasEntry(log, "Could not connect to FIX Client at http://fix:8081"))
	assert.False(t, hasEntry(log, "positions from API"))
}

func TestLoader_AgainstHTTPService(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/portfolio/summary", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"positions":[{"symbol":"TSLA","quantity":"-50","avgCost":200}]}`)
	})
	mux.HandleFunc("/api/executions", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	})
	mux.HandleFunc("/api/portfolio/market-data", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"quotes":{"TSLA":{"symbol":"TSLA","price":190}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	agg := portfolio.New()
	NewLoader(fixclient.New(fixclient.Config{BaseURL: srv.URL}), agg, 50).Load(context.Background())

	p, ok := agg.Position("TSLA")
	require.True(t, ok)
	assert.Equal(t, 500.0, p.UnrealizedPnL.Or(0))
}
