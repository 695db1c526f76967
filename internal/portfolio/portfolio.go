// Package portfolio is the reconciliation engine of the blotter.
//
// An Aggregator owns every piece of portfolio state: positions keyed by
// symbol, the most recent executions, orders keyed by client order id, the
// latest quote per symbol, the connectivity flag and a short diagnostic log.
// Every Apply* and snapshot call takes the same mutex for its whole duration,
// so readers never observe a position with a new price but stale derived
// fields. No call holds the lock across I/O.
package portfolio

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"portfolio-blotter/internal/model"
	"portfolio-blotter/internal/ringbuf"
)

const (
	// ExecutionCapacity is the number of executions retained, newest first.
	ExecutionCapacity = 100
	// LogCapacity is the number of diagnostic log entries retained.
	LogCapacity = 50
)

// Aggregator is the single owner of portfolio state. Create it with New and
// share the pointer between the ingest and read paths.
type Aggregator struct {
	mu sync.Mutex

	positions  map[string]model.Position
	executions *ringbuf.Ring[model.Execution]
	orders     map[string]model.Order
	quotes     map[string]model.Quote
	diag       *ringbuf.Ring[string]

	connected  bool
	lastUpdate time.Time

	now func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an empty Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		positions:  make(map[string]model.Position),
		executions: ringbuf.New[model.Execution](ExecutionCapacity),
		orders:     make(map[string]model.Order),
		quotes:     make(map[string]model.Quote),
		diag:       ringbuf.New[string](LogCapacity),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply dispatches a decoded event to the matching Apply* operation.
func (a *Aggregator) Apply(ev model.Event) error {
	switch e := ev.(type) {
	case model.PositionUpdate:
		return a.ApplyPosition(e)
	case model.MarketQuote:
		return a.ApplyQuote(e)
	case model.Execution:
		a.ApplyExecution(e)
		return nil
	case model.OrderUpdate:
		return a.ApplyOrder(e)
	default:
		return fmt.Errorf("portfolio: unsupported event %T", ev)
	}
}

// ApplyPosition replaces the stored position for u.Symbol. The record is
// trusted as sent: derived fields are not recomputed here.
func (a *Aggregator) ApplyPosition(u model.PositionUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if strings.TrimSpace(u.Symbol) == "" {
		err := &model.InvalidFieldError{Kind: model.KindPosition, Field: "symbol", Err: model.ErrMissingValue}
		a.logLocked("Position update rejected: %v", err)
		return err
	}

	var qty float64
	if u.Quantity.Present() {
		q, err := u.Quantity.Float64()
		if err != nil {
			ferr := &model.InvalidFieldError{
				Kind: model.KindPosition, Key: u.Symbol,
				Field: "quantity", Value: string(u.Quantity), Err: err,
			}
			a.logLocked("Position update rejected: %v", ferr)
			return ferr
		}
		qty = q
	}

	now := a.now()
	a.positions[u.Symbol] = model.Position{
		Symbol:        u.Symbol,
		Quantity:      qty,
		AvgCost:       u.AvgCost,
		CurrentPrice:  u.CurrentPrice,
		MarketValue:   u.MarketValue,
		UnrealizedPnL: u.UnrealizedPnL,
		RealizedPnL:   u.RealizedPnL,
		TotalCost:     u.TotalCost,
		LastUpdated:   parseTimestamp(string(u.LastUpdated), now),
	}
	a.lastUpdate = now

	price := "N/A"
	if u.CurrentPrice.Present() {
		price = string(u.CurrentPrice)
	}
	a.logLocked("Position updated: %s qty=%s price=$%s", u.Symbol, formatQty(qty), price)
	return nil
}

// ApplyQuote stores q and reprices the position for the same symbol, if
// any. A quote without a symbol or with a missing or non-numeric price is
// rejected with *model.InvalidQuoteError and leaves all state unchanged.
func (a *Aggregator) ApplyQuote(q model.MarketQuote) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if strings.TrimSpace(q.Symbol) == "" {
		err := &model.InvalidQuoteError{Field: &model.InvalidFieldError{
			Kind: model.KindQuote, Field: "symbol", Err: model.ErrMissingValue,
		}}
		a.logLocked("Market data missing symbol")
		return err
	}

	price, err := q.Price.Float64()
	if err != nil {
		qerr := &model.InvalidQuoteError{Field: &model.InvalidFieldError{
			Kind: model.KindQuote, Key: q.Symbol,
			Field: "price", Value: string(q.Price), Err: err,
		}}
		if q.Price.Present() {
			a.logLocked("Invalid price for %s: %s", q.Symbol, string(q.Price))
		} else {
			a.logLocked("Market data missing price for %s", q.Symbol)
		}
		return qerr
	}

	now := a.now()
	a.quotes[q.Symbol] = model.Quote{
		Symbol:        q.Symbol,
		Price:         price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Open:          q.Open,
		High:          q.High,
		Low:           q.Low,
		PreviousClose: q.PreviousClose,
		BidPrice:      q.BidPrice,
		AskPrice:      q.AskPrice,
		Volume:        q.Volume,
		Source:        q.Source,
		ReceivedAt:    now,
	}

	if pos, ok := a.positions[q.Symbol]; ok {
		old := "None"
		if pos.CurrentPrice.Present() {
			old = string(pos.CurrentPrice)
		}
		reprice(&pos, price)
		pos.LastUpdated = now
		a.positions[q.Symbol] = pos
		a.logLocked("Position %s price updated: $%s -> $%.2f, Unrealized P&L: $%.2f",
			q.Symbol, old, price, pos.UnrealizedPnL.Or(0))
	} else {
		a.logLocked("Market data received for %s @ $%.2f (no position)", q.Symbol, price)
	}

	a.lastUpdate = now
	return nil
}

// ApplyExecution records e as the newest execution, evicting the oldest
// one past ExecutionCapacity.
func (a *Aggregator) ApplyExecution(e model.Execution) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.executions.Push(e)
	a.lastUpdate = a.now()
	a.logLocked("Execution: %s %s %s %s @ $%s",
		e.ExecType, e.Side, e.Symbol, string(e.LastQuantity), string(e.LastPrice))
}

// ApplyOrder replaces the stored order with the same client order id.
func (a *Aggregator) ApplyOrder(u model.OrderUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if strings.TrimSpace(string(u.ClOrdID)) == "" {
		err := &model.InvalidFieldError{Kind: model.KindOrder, Key: u.Symbol, Field: "clOrdId", Err: model.ErrMissingValue}
		a.logLocked("Order update rejected: %v", err)
		return err
	}

	a.orders[string(u.ClOrdID)] = model.Order(u)
	a.lastUpdate = a.now()
	a.logLocked("Order: %s %s %s %s", u.ClOrdID, u.Status, u.Side, u.Symbol)
	return nil
}

// SetConnected records transport connectivity for diagnostics.
func (a *Aggregator) SetConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	a.mu.Unlock()
}

// Connected reports the last recorded transport connectivity.
func (a *Aggregator) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// LastUpdate returns the time of the last applied update, zero if none.
func (a *Aggregator) LastUpdate() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastUpdate
}

// Record appends a message to the diagnostic log.
func (a *Aggregator) Record(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logLocked(format, args...)
}

// logLocked must be called with a.mu held.
func (a *Aggregator) logLocked(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.diag.Push("[" + a.now().Format("15:04:05") + "] " + msg)
	slog.Info("[portfolio] " + msg)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp reads a producer timestamp, falling back to def. Bare
// numbers are Unix epochs in seconds, or milliseconds past 1e12.
func parseTimestamp(s string, def time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v > 0 && !math.IsInf(v, 0) {
		if v >= 1e12 {
			return time.UnixMilli(int64(v)).UTC()
		}
		sec := math.Floor(v)
		return time.Unix(int64(sec), int64((v-sec)*1e9)).UTC()
	}
	return def
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
