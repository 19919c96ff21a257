package model

import "time"

// Side is the order direction. The core pipeline only accumulates.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType selects the execution style on the exchange.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus mirrors the tranche state plus the transient submitted state.
type OrderStatus string

const (
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderSkipped   OrderStatus = "skipped"
	OrderFailed    OrderStatus = "failed"
)

// Order is one append-only ledger record for a tranche submission attempt or
// its safety outcome.
type Order struct {
	ID              int64
	TrancheKey      string
	Side            Side
	Notional        float64
	Type            OrderType
	ExchangeOrderID string  // set after submission
	FillPrice       float64 // set after fill
	FillQty         float64 // set after fill
	Status          OrderStatus
	Reason          string
	CreatedAt       time.Time
}
