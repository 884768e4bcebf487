package pnl

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Percentage returns P&L as a percent of entry value, rounded to 2 places.
// Open positions use unrealized P&L, closed ones realized P&L.
// A zero entry value yields 0.
func Percentage(p *domain.Position) decimal.Decimal {
	value := p.EntryPrice.Mul(p.Size)
	if value.IsZero() {
		return decimal.Zero
	}
	pnl := p.RealizedPnL
	if p.IsOpen {
		pnl = p.UnrealizedPnL
	}
	return pnl.Div(value).Mul(hundred).Round(2)
}

// Summarize builds the account summary from already-marked positions.
func Summarize(acct *domain.Account, positions []*domain.Position) *domain.AccountPnLSummary {
	s := &domain.AccountPnLSummary{
		AccountID:       acct.ID,
		Balance:         acct.Balance,
		Equity:          acct.Equity,
		MarginUsed:      acct.MarginUsed,
		MarginAvailable: acct.MarginAvailable,
		UnrealizedPnL:   decimal.Zero,
		RealizedPnL:     decimal.Zero,
		WinRate:         decimal.Zero,
		AverageWin:      decimal.Zero,
		AverageLoss:     decimal.Zero,
	}

	wins, losses := decimal.Zero, decimal.Zero
	for _, p := range positions {
		s.RealizedPnL = s.RealizedPnL.Add(p.RealizedPnL)
		if p.IsOpen {
			s.OpenPositions++
			s.UnrealizedPnL = s.UnrealizedPnL.Add(p.UnrealizedPnL)
			continue
		}
		s.ClosedPositions++
		switch p.RealizedPnL.Sign() {
		case 1:
			s.WinningTrades++
			wins = wins.Add(p.RealizedPnL)
		case -1:
			s.LosingTrades++
			losses = losses.Add(p.RealizedPnL)
		}
	}

	s.TotalPnL = s.RealizedPnL.Add(s.UnrealizedPnL)
	s.MarkedEquity = acct.Equity.Add(s.UnrealizedPnL)
	if s.ClosedPositions > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.WinningTrades)).
			Div(decimal.NewFromInt(int64(s.ClosedPositions))).
			Mul(hundred).Round(2)
	}
	if s.WinningTrades > 0 {
		s.AverageWin = wins.Div(decimal.NewFromInt(int64(s.WinningTrades)))
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = losses.Div(decimal.NewFromInt(int64(s.LosingTrades)))
	}
	return s
}
