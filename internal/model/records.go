package model

import "time"

// Position is the canonical per-symbol position. MarketValue, UnrealizedPnL
// and TotalCost always belong to the last applied (Quantity, AvgCost,
// CurrentPrice) triple: either as sent by a PositionUpdate or recomputed on
// a quote.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"` // positive = long, negative = short, zero = closed
	AvgCost       Numeric   `json:"avgCost"`
	CurrentPrice  Numeric   `json:"currentPrice"`
	MarketValue   Numeric   `json:"marketValue"`
	UnrealizedPnL Numeric   `json:"unrealizedPnl"`
	RealizedPnL   Numeric   `json:"realizedPnl"`
	TotalCost     Numeric   `json:"totalCost"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// Closed reports whether the position has no open quantity.
func (p *Position) Closed() bool { return p.Quantity == 0 }

// Order is the canonical per-client-order-id order record.
type Order struct {
	ClOrdID        Text    `json:"clOrdId"`
	OrderID        Text    `json:"orderId,omitempty"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	OrderType      string  `json:"orderType"`
	Quantity       Numeric `json:"quantity"`
	Price          Numeric `json:"price"`
	Status         string  `json:"status"`
	FilledQuantity Numeric `json:"filledQuantity"`
	LeavesQuantity Numeric `json:"leavesQuantity"`
}

// Quote is the latest market data for a symbol. A quote for a symbol
// without a position is kept as market data only.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        Numeric   `json:"change"`
	ChangePercent Numeric   `json:"changePercent"`
	Open          Numeric   `json:"open"`
	High          Numeric   `json:"high"`
	Low           Numeric   `json:"low"`
	PreviousClose Numeric   `json:"previousClose"`
	BidPrice      Numeric   `json:"bidPrice,omitempty"`
	AskPrice      Numeric   `json:"askPrice,omitempty"`
	Volume        Numeric   `json:"volume,omitempty"`
	Source        string    `json:"source"`
	ReceivedAt    time.Time `json:"receivedAt"`
}
