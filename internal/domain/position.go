package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of a position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Opposite returns the other side.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionSideLong {
		return PositionSideShort
	}
	return PositionSideLong
}

// Position is an open or closed directional exposure.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	ID            string
	AccountID     string
	InstrumentID  string
	Side          PositionSide
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal // last mark
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal // accumulated across partial closes
	Leverage      int
	MarginUsed    decimal.Decimal
	StopLoss      *decimal.Decimal
	TakeProfit    *decimal.Decimal
	IsOpen        bool
	Version       int64
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// NewPosition builds an open position marked at its entry price.
func NewPosition(id, accountID, instrumentID string, side PositionSide, size, entry decimal.Decimal, leverage int, margin decimal.Decimal, at time.Time) *Position {
	return &Position{
		ID:            id,
		AccountID:     accountID,
		InstrumentID:  instrumentID,
		Side:          side,
		Size:          size,
		EntryPrice:    entry,
		CurrentPrice:  entry,
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   decimal.Zero,
		Leverage:      leverage,
		MarginUsed:    margin,
		IsOpen:        true,
		OpenedAt:      at,
	}
}

// PnLAt returns the directional P&L of size units marked at price.
func (p *Position) PnLAt(price, size decimal.Decimal) decimal.Decimal {
	if p.Side == PositionSideLong {
		return price.Sub(p.EntryPrice).Mul(size)
	}
	return p.EntryPrice.Sub(price).Mul(size)
}

// MarkToMarket sets the current price and recomputes unrealized P&L.
// Closed positions are left untouched.
func (p *Position) MarkToMarket(price decimal.Decimal) {
	if !p.IsOpen {
		return
	}
	p.CurrentPrice = price
	p.UnrealizedPnL = p.PnLAt(price, p.Size)
}

// CloseOutcome describes one applied close transition.
type CloseOutcome struct {
	ClosedSize    decimal.Decimal
	ExitPrice     decimal.Decimal
	RealizedDelta decimal.Decimal // credited to the account balance
	MarginRelease decimal.Decimal // returned to margin_available
	FullyClosed   bool
}

// Close reduces the position by closeSize at exitPrice.
//
// closeSize >= Size closes the position in full: the whole margin is
// released, unrealized P&L becomes realized and the position turns terminal.
// A smaller closeSize realizes the proportional share of P&L and margin and
// leaves the remainder open.
func (p *Position) Close(closeSize, exitPrice decimal.Decimal, at time.Time) (CloseOutcome, error) {
	if !p.IsOpen {
		return CloseOutcome{}, ErrPositionClosed
	}
	if !closeSize.IsPositive() {
		return CloseOutcome{}, ErrInvalidCloseSize
	}

	p.MarkToMarket(exitPrice)

	if closeSize.GreaterThanOrEqual(p.Size) {
		out := CloseOutcome{
			ClosedSize:    p.Size,
			ExitPrice:     exitPrice,
			RealizedDelta: p.UnrealizedPnL,
			MarginRelease: p.MarginUsed,
			FullyClosed:   true,
		}
		p.RealizedPnL = p.RealizedPnL.Add(out.RealizedDelta)
		p.UnrealizedPnL = decimal.Zero
		p.IsOpen = false
		p.ClosedAt = &at
		return out, nil
	}

	ratio := closeSize.Div(p.Size)
	out := CloseOutcome{
		ClosedSize:    closeSize,
		ExitPrice:     exitPrice,
		RealizedDelta: p.PnLAt(exitPrice, closeSize),
		MarginRelease: p.MarginUsed.Mul(ratio).Round(8),
	}
	p.Size = p.Size.Sub(closeSize)
	p.MarginUsed = p.MarginUsed.Sub(out.MarginRelease)
	p.RealizedPnL = p.RealizedPnL.Add(out.RealizedDelta)
	p.UnrealizedPnL = p.UnrealizedPnL.Sub(out.RealizedDelta)
	return out, nil
}

// StopLossHit reports whether price has crossed the stop-loss.
func (p *Position) StopLossHit(price decimal.Decimal) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.Side == PositionSideLong {
		return price.LessThanOrEqual(*p.StopLoss)
	}
	return price.GreaterThanOrEqual(*p.StopLoss)
}

// TakeProfitHit reports whether price has crossed the take-profit.
func (p *Position) TakeProfitHit(price decimal.Decimal) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.Side == PositionSideLong {
		return price.GreaterThanOrEqual(*p.TakeProfit)
	}
	return price.LessThanOrEqual(*p.TakeProfit)
}

// Close reason codes, recorded in trade_pnl metadata.
const (
	CloseReasonManual     = "manual"
	CloseReasonOrder      = "order"
	CloseReasonStopLoss   = "stop_loss"
	CloseReasonTakeProfit = "take_profit"
)
