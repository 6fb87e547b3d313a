// FILE: types.go
// Package main – Core data types shared across the engine.
//
// These are the wire/data shapes every other file builds on: candles,
// orderbook snapshots, trade/liquidation events, and the order request/update
// pair the execution engine and broker adapters exchange.
package main

import "time"

// Candle is an immutable OHLCV bar, indexed by minute-floored UTC time.
type Candle struct {
	Time   time.Time `json:"ts_utc"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceLevel is one (price, qty) rung of an orderbook side.
type PriceLevel struct {
	Price float64
	Qty   float64
}

// OrderbookSnapshot holds normalized bid/ask levels: bids descending by
// price, asks ascending by price.
type OrderbookSnapshot struct {
	Symbol string
	TsMs   int64
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// BestBidAsk returns the top of book, or zeros if either side is empty.
func (ob OrderbookSnapshot) BestBidAsk() (bid, ask float64) {
	if len(ob.Bids) > 0 {
		bid = ob.Bids[0].Price
	}
	if len(ob.Asks) > 0 {
		ask = ob.Asks[0].Price
	}
	return bid, ask
}

// Trade is a single taker trade print.
type Trade struct {
	TsMs   int64
	Price  float64
	Qty    float64
	IsBuy  bool // taker direction: true = taker bought (aggressive buy)
}

// Notional returns price*qty for this trade.
func (t Trade) Notional() float64 { return t.Price * t.Qty }

// LiquidationSide mirrors the forced order's side.
type LiquidationSide string

const (
	LiqBuy  LiquidationSide = "BUY"  // forced buy => short liquidation
	LiqSell LiquidationSide = "SELL" // forced sell => long liquidation
)

// Liquidation is a single forced-order print from the liquidation stream.
type Liquidation struct {
	TsMs  int64
	Side  LiquidationSide
	Price float64
	Qty   float64
}

// OrderSide is the side of a trade or order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the closing side for a given position side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes market vs limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// OrderStatus is the lifecycle state of a placed order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
)

// OrderMeta carries the optional, venue-flavored order flags.
type OrderMeta struct {
	TimeInForce     string
	ReduceOnly      bool
	PositionSide    string
	NewOrderRespType string
	QuoteOrderQty   float64
	ExitReason      string // non-empty => this request closes a position
	IntentCoverShort bool
	LiqHintPrice    float64
}

// OrderRequest is what the control loop hands the execution engine.
type OrderRequest struct {
	Venue         string
	Symbol        string
	Side          OrderSide
	OrderType     OrderType
	Qty           float64
	Price         float64 // required for LIMIT
	ClientOrderID string
	Meta          OrderMeta
}

// OrderUpdate is the canonical, normalized response from any broker adapter.
// Adapter-specific wire shapes are normalized into this at the adapter
// boundary (see broker_bridge.go).
type OrderUpdate struct {
	Venue         string
	OrderID       string
	ClientOrderID string
	Symbol        string
	Status        OrderStatus
	FilledQty     float64
	AvgFillPrice  float64
	Fee           float64
	Ts            time.Time
	Raw           map[string]any
}

// Successful reports whether this update represents a meaningful fill.
func (u OrderUpdate) Successful() bool {
	return u.FilledQty > 0 && u.Status != StatusRejected
}

// Terminal reports whether no further fills are expected for this order.
func (u OrderUpdate) Terminal() bool {
	switch u.Status {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	default:
		return false
	}
}

// SymbolRules describes exchange lot-size / notional constraints for one
// symbol.
type SymbolRules struct {
	Symbol       string    `json:"symbol"`
	QtyStep      float64   `json:"qty_step"`
	MinQty       float64   `json:"min_qty"`
	MaxQty       float64   `json:"max_qty"`
	MinNotional  float64   `json:"min_notional"`
	QtyPrecision int       `json:"qty_precision"`
	PositionSide string    `json:"position_side"` // hedge-mode/one-way tag as returned with each rules fetch
	RefreshedAt  time.Time `json:"-"`
}
