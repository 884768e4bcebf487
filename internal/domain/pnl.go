package domain

import "github.com/shopspring/decimal"

// AccountPnLSummary aggregates realized and unrealized P&L for an account.
type AccountPnLSummary struct {
	AccountID       string
	Balance         decimal.Decimal
	Equity          decimal.Decimal // stored equity: balance + margin_used
	MarkedEquity    decimal.Decimal // equity plus unrealized P&L of open positions
	MarginUsed      decimal.Decimal
	MarginAvailable decimal.Decimal
	TotalPnL        decimal.Decimal
	UnrealizedPnL   decimal.Decimal // open positions
	RealizedPnL     decimal.Decimal // all positions, including partial closes of open ones
	OpenPositions   int
	ClosedPositions int
	WinningTrades   int // closed positions with realized > 0
	LosingTrades    int // closed positions with realized < 0
	WinRate         decimal.Decimal // percent, 2dp
	AverageWin      decimal.Decimal
	AverageLoss     decimal.Decimal // signed, <= 0
}
