package model

// Kind identifies the variant of a decoded event. The values match the
// envelope "type" discriminator where the producer sends one.
type Kind string

const (
	KindPosition  Kind = "POSITION_UPDATE"
	KindExecution Kind = "EXECUTION"
	KindOrder     Kind = "ORDER_UPDATE"
	KindQuote     Kind = "MARKET_DATA"
)

// Topic is a logical ingest topic. Each maps to one transport channel.
type Topic string

const (
	TopicPositions  Topic = "positions"
	TopicExecutions Topic = "executions"
	TopicOrders     Topic = "orders"
	TopicMarketData Topic = "marketdata"
)

// Topics lists every ingest topic in subscription order.
var Topics = []Topic{TopicPositions, TopicExecutions, TopicOrders, TopicMarketData}

// Event is one of PositionUpdate, Execution, OrderUpdate or MarketQuote.
type Event interface {
	Kind() Kind
}

// PositionUpdate is a full position record from a position publisher or
// the bootstrap summary. Derived fields are carried through as sent.
type PositionUpdate struct {
	Symbol        string  `json:"symbol"`
	Quantity      Numeric `json:"quantity"`
	AvgCost       Numeric `json:"avgCost"`
	CurrentPrice  Numeric `json:"currentPrice"`
	MarketValue   Numeric `json:"marketValue"`
	UnrealizedPnL Numeric `json:"unrealizedPnl"`
	RealizedPnL   Numeric `json:"realizedPnl"`
	TotalCost     Numeric `json:"totalCost"`
	LastUpdated   Text    `json:"lastUpdated"`
}

func (PositionUpdate) Kind() Kind { return KindPosition }

// MarketQuote is a price update for one symbol.
type MarketQuote struct {
	Symbol        string  `json:"symbol"`
	Price         Numeric `json:"price"`
	Change        Numeric `json:"change"`
	ChangePercent Numeric `json:"changePercent"`
	Open          Numeric `json:"open"`
	High          Numeric `json:"high"`
	Low           Numeric `json:"low"`
	PreviousClose Numeric `json:"previousClose"`
	BidPrice      Numeric `json:"bidPrice"`
	AskPrice      Numeric `json:"askPrice"`
	Volume        Numeric `json:"volume"`
	Source        string  `json:"source"`
}

func (MarketQuote) Kind() Kind { return KindQuote }

// Execution is an execution report. It is both the event and the stored
// record; stored executions are never modified.
type Execution struct {
	Timestamp    Text    `json:"timestamp"`
	ExecID       Text    `json:"execId,omitempty"`
	OrderID      Text    `json:"orderId,omitempty"`
	ClOrdID      Text    `json:"clOrdId,omitempty"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	ExecType     string  `json:"execType"`
	LastQuantity Numeric `json:"lastQuantity"`
	LastPrice    Numeric `json:"lastPrice"`
	CumQuantity  Numeric `json:"cumQuantity"`
	AvgPrice     Numeric `json:"avgPrice,omitempty"`
	OrderStatus  string  `json:"orderStatus"`
}

func (Execution) Kind() Kind { return KindExecution }

// OrderUpdate replaces the stored Order with the same client order id.
type OrderUpdate Order

func (OrderUpdate) Kind() Kind { return KindOrder }
