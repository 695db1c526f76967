package portfolio

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-blotter/internal/model"
)

// Summary is the portfolio-level summation shown on the blotter header.
// Market value and unrealized P&L cover open positions only; realized P&L
// covers every position, closed ones included.
type Summary struct {
	TotalMarketValue   float64 `json:"totalMarketValue"`
	TotalUnrealizedPnL float64 `json:"totalUnrealizedPnl"`
	TotalRealizedPnL   float64 `json:"totalRealizedPnl"`
	OpenPositions      int     `json:"openPositions"`
}

// Snapshot is a frozen, point-in-time copy of the whole aggregator.
type Snapshot struct {
	Positions  []model.Position  `json:"positions"`
	Executions []model.Execution `json:"executions"`
	Orders     []model.Order     `json:"orders"`
	Quotes     []model.Quote     `json:"quotes"`
	Summary    Summary           `json:"summary"`
	Connected  bool              `json:"connected"`
	LastUpdate time.Time         `json:"lastUpdate"`
	Log        []string          `json:"log"`
}

// Snapshot copies every collection under a single lock acquisition.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := a.positionsLocked()
	return Snapshot{
		Positions:  positions,
		Executions: a.executions.Newest(),
		Orders:     a.ordersLocked(),
		Quotes:     a.quotesLocked(),
		Summary:    summarize(positions),
		Connected:  a.connected,
		LastUpdate: a.lastUpdate,
		Log:        a.diag.Newest(),
	}
}

// Positions returns a copy of all positions, closed ones included, sorted by symbol.
func (a *Aggregator) Positions() []model.Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positionsLocked()
}

// Position returns a copy of the position for symbol.
func (a *Aggregator) Position(symbol string) (model.Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[symbol]
	return p, ok
}

// Executions returns a copy of the retained executions, newest first.
func (a *Aggregator) Executions() []model.Execution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executions.Newest()
}

// Orders returns a copy of all orders sorted by client order id.
func (a *Aggregator) Orders() []model.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ordersLocked()
}

// Quotes returns a copy of the latest quote per symbol, sorted by symbol.
func (a *Aggregator) Quotes() []model.Quote {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quotesLocked()
}

// Quote returns a copy of the latest quote for symbol.
func (a *Aggregator) Quote(symbol string) (model.Quote, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.quotes[symbol]
	return q, ok
}

// DiagnosticLog returns the retained log entries, newest first.
func (a *Aggregator) DiagnosticLog() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.diag.Newest()
}

// Summary sums the current positions.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return summarize(a.positionsLocked())
}

func (a *Aggregator) positionsLocked() []model.Position {
	out := make([]model.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (a *Aggregator) ordersLocked() []model.Order {
	out := make([]model.Order, 0, len(a.orders))
	for _, o := range a.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClOrdID < out[j].ClOrdID })
	return out
}

func (a *Aggregator) quotesLocked() []model.Quote {
	out := make([]model.Quote, 0, len(a.quotes))
	for _, q := range a.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// summarize treats non-numeric derived fields as zero.
func summarize(positions []model.Position) Summary {
	var mv, unrealized, realized decimal.Decimal
	open := 0
	for i := range positions {
		p := &positions[i]
		realized = realized.Add(decOrZero(p.RealizedPnL))
		if p.Closed() {
			continue
		}
		open++
		mv = mv.Add(decOrZero(p.MarketValue))
		unrealized = unrealized.Add(decOrZero(p.UnrealizedPnL))
	}
	return Summary{
		TotalMarketValue:   mv.Round(2).InexactFloat64(),
		TotalUnrealizedPnL: unrealized.Round(2).InexactFloat64(),
		TotalRealizedPnL:   realized.Round(2).InexactFloat64(),
		OpenPositions:      open,
	}
}

func decOrZero(n model.Numeric) decimal.Decimal {
	d, err := n.Decimal()
	if err != nil {
		return decimal.Zero
	}
	return d
}
