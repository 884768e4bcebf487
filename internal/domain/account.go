package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a simulated trading account.
// Corresponds to accounts table in PostgreSQL.
//
// Balance is settled cash and is only changed by posting a ledger entry.
// Equity is always Balance + MarginUsed (unrealized P&L is not folded in).
type Account struct {
	ID              string
	OwnerID         string // owning user, opaque to this core
	Name            string
	Currency        string // ISO code, e.g. "USD"
	Balance         decimal.Decimal
	Equity          decimal.Decimal
	MarginUsed      decimal.Decimal // collateral pledged to open positions
	MarginAvailable decimal.Decimal // collateral free for new orders
	MaxLeverage     int
	IsDemo          bool
	IsActive        bool
	Version         int64 // optimistic concurrency token, bumped by every update
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultInitialBalance is the funding of a new account when none is requested.
var DefaultInitialBalance = decimal.NewFromInt(10000)

// RecomputeEquity restores the Equity == Balance + MarginUsed invariant.
func (a *Account) RecomputeEquity() {
	a.Equity = a.Balance.Add(a.MarginUsed)
}

// PledgeMargin moves margin from available to used collateral and charges the
// commission against available collateral. Balance is untouched: the
// commission itself is debited through the ledger.
func (a *Account) PledgeMargin(margin, commission decimal.Decimal) {
	a.MarginUsed = a.MarginUsed.Add(margin)
	a.MarginAvailable = a.MarginAvailable.Sub(margin).Sub(commission)
}

// ReleaseMargin returns collateral from a closed (or partially closed) position.
func (a *Account) ReleaseMargin(amount decimal.Decimal) {
	a.MarginUsed = a.MarginUsed.Sub(amount)
	a.MarginAvailable = a.MarginAvailable.Add(amount)
}

// CanAfford reports whether available collateral covers margin plus commission.
func (a *Account) CanAfford(margin, commission decimal.Decimal) bool {
	return a.MarginAvailable.GreaterThanOrEqual(margin.Add(commission))
}
