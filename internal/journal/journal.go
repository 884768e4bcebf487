// Package journal mirrors committed ledger activity into an audit store
// that lives outside the transactional database.
package journal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
)

// AccountSnapshot captures account balances right after a committed mutation.
type AccountSnapshot struct {
	AccountID       string
	Time            time.Time
	Balance         decimal.Decimal
	Equity          decimal.Decimal
	MarginUsed      decimal.Decimal
	MarginAvailable decimal.Decimal
	Version         int64
}

// SnapshotOf builds a snapshot of a.
func SnapshotOf(a *domain.Account, at time.Time) AccountSnapshot {
	return AccountSnapshot{
		AccountID:       a.ID,
		Time:            at,
		Balance:         a.Balance,
		Equity:          a.Equity,
		MarginUsed:      a.MarginUsed,
		MarginAvailable: a.MarginAvailable,
		Version:         a.Version,
	}
}

// Journal records committed ledger entries and account snapshots.
// Writes happen after commit; a failed write never undoes the commit.
type Journal interface {
	RecordEntry(ctx context.Context, e *domain.LedgerEntry) error
	RecordSnapshot(ctx context.Context, s AccountSnapshot) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordEntry(context.Context, *domain.LedgerEntry) error { return nil }
func (Nop) RecordSnapshot(context.Context, AccountSnapshot) error  { return nil }

var _ Journal = Nop{}
