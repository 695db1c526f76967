// Package bootstrap loads the starting portfolio state from the FIX client
// before streaming begins.
package bootstrap

import (
	"context"
	"errors"
	"log"
	"net"

	"github.com/sourcegraph/conc"

	"portfolio-blotter/internal/fixclient"
	"portfolio-blotter/internal/model"
)

// Source is the read side of the FIX client.
type Source interface {
	PortfolioSummary(ctx context.Context) (*fixclient.PortfolioSummary, error)
	Executions(ctx context.Context, limit int) ([]model.Execution, error)
	Orders(ctx context.Context) ([]model.OrderUpdate, error)
	MarketData(ctx context.Context) (map[string]model.MarketQuote, error)
	BaseURL() string
}

// Sink is the engine side. *portfolio.Aggregator implements it.
type Sink interface {
	Apply(ev model.Event) error
	Record(format string, args ...any)
}

// Result counts what was applied from each endpoint.
type Result struct {
	Positions  int
	Executions int
	Orders     int
	Quotes     int
	Errors     []error
}

// Loader fetches the four bootstrap collections and feeds every element
// through the same Apply path as live events.
type Loader struct {
	src   Source
	sink  Sink
	limit int
}

// NewLoader creates a Loader that requests up to execLimit executions.
func NewLoader(src Source, sink Sink, execLimit int) *Loader {
	if execLimit <= 0 {
		execLimit = 50
	}
	return &Loader{src: src, sink: sink, limit: execLimit}
}

// Load fetches all endpoints concurrently, then applies positions,
// executions, orders and quotes in that order. A failing endpoint is
// recorded and skipped; Load itself never fails.
func (l *Loader) Load(ctx context.Context) Result {
	var (
		summary              *fixclient.PortfolioSummary
		execs                []model.Execution
		orders               []model.OrderUpdate
		quotes               map[string]model.MarketQuote
		sumErr, exErr, orErr error
		mdErr                error
	)

	var wg conc.WaitGroup
	wg.Go(func() { summary, sumErr = l.src.PortfolioSummary(ctx) })
	wg.Go(func() { execs, exErr = l.src.Executions(ctx, l.limit) })
	wg.Go(func() { orders, orErr = l.src.Orders(ctx) })
	wg.Go(func() { quotes, mdErr = l.src.MarketData(ctx) })
	wg.Wait()

	var res Result

	if sumErr == nil {
		for _, p := range summary.Positions {
			if l.apply(p) {
				res.Positions++
			}
		}
		l.sink.Record("Loaded %d positions from API", len(summary.Positions))
	}

	if exErr == nil {
		// Applied in response order: the last element ends up at the head.
		for _, e := range execs {
			if l.apply(e) {
				res.Executions++
			}
		}
		l.sink.Record("Loaded %d executions from API", len(execs))
	}

	if orErr == nil {
		for _, o := range orders {
			if l.apply(o) {
				res.Orders++
			}
		}
		l.sink.Record("Loaded %d orders from API", len(orders))
	}

	if mdErr == nil {
		for sym, q := range quotes {
			if q.Symbol == "" {
				q.Symbol = sym
			}
			if l.apply(q) {
				res.Quotes++
			}
		}
		l.sink.Record("Loaded market data for %d symbols", len(quotes))
	} else {
		l.sink.Record("Could not fetch market data: %v", mdErr)
	}

	for _, err := range []error{sumErr, exErr, orErr, mdErr} {
		if err != nil {
			res.Errors = append(res.Errors, err)
		}
	}
	if unreachable(sumErr, exErr, orErr) {
		l.sink.Record("Could not connect to FIX Client at %s", l.src.BaseURL())
	}

	log.Printf("[bootstrap] loaded positions=%d executions=%d orders=%d quotes=%d errors=%d",
		res.Positions, res.Executions, res.Orders, res.Quotes, len(res.Errors))
	return res
}

func (l *Loader) apply(ev model.Event) bool {
	if err := l.sink.Apply(ev); err != nil {
		log.Printf("[bootstrap] skipped %s: %v", ev.Kind(), err)
		return false
	}
	return true
}

// unreachable reports whether any error came from a failed connection
// rather than an HTTP response.
func unreachable(errs ...error) bool {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, fixclient.ErrCircuitOpen) {
			return true
		}
		var nerr net.Error
		var oerr *model.OutboundRequestError
		if errors.As(err, &nerr) || (errors.As(err, &oerr) && oerr.Status == 0) {
			return true
		}
	}
	return false
}
