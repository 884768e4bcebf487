package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType enumerates supported order types.
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeTakeProfit   OrderType = "take_profit"
	OrderTypeTrailingStop OrderType = "trailing_stop"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit,
		OrderTypeTakeProfit, OrderTypeTrailingStop:
		return true
	}
	return false
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Valid reports whether s is buy or sell.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// PositionSide returns the side of the exposure this order opens.
func (s OrderSide) PositionSide() PositionSide {
	if s == OrderSideBuy {
		return PositionSideLong
	}
	return PositionSideShort
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected || s == OrderStatusCanceled
}

// Order is one execution request.
// Corresponds to orders table in PostgreSQL.
type Order struct {
	ID           string
	AccountID    string
	InstrumentID string
	Type         OrderType
	Side         OrderSide
	Size         decimal.Decimal
	Price        *decimal.Decimal // limit price
	StopPrice    *decimal.Decimal
	Leverage     int
	Status       OrderStatus

	// Fill details, set once the order is filled.
	FilledSize     decimal.Decimal
	FillPrice      *decimal.Decimal
	Slippage       *decimal.Decimal // fraction applied to the raw fill price
	Commission     decimal.Decimal
	MarginRequired decimal.Decimal
	PositionID     string // position opened or closed by the fill (non-owning)

	RejectReason string
	Version      int64
	CreatedAt    time.Time
	FilledAt     *time.Time
	CanceledAt   *time.Time
	RejectedAt   *time.Time
}

// Fill transitions a pending order to filled.
func (o *Order) Fill(price, slippage, commission, margin decimal.Decimal, positionID string, at time.Time) {
	o.Status = OrderStatusFilled
	o.FilledSize = o.Size
	o.FillPrice = &price
	o.Slippage = &slippage
	o.Commission = commission
	o.MarginRequired = margin
	o.PositionID = positionID
	o.FilledAt = &at
}

// Reject transitions a pending order to rejected.
func (o *Order) Reject(reason string, at time.Time) {
	o.Status = OrderStatusRejected
	o.RejectReason = reason
	o.RejectedAt = &at
}

// Cancel transitions a pending order to canceled.
func (o *Order) Cancel(at time.Time) {
	o.Status = OrderStatusCanceled
	o.CanceledAt = &at
}
