package account

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/accountlock"
	"papertrade/internal/domain"
	"papertrade/internal/ledger"
	"papertrade/internal/storage"
	"papertrade/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newService(t *testing.T) (*Service, *ledger.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	l := ledger.NewService(ledger.Options{Tx: store, Guard: accountlock.New(accountlock.Options{})})
	return NewService(Options{Tx: store, Ledger: l}), l, store
}

func TestCreate_Defaults(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()

	acct, err := svc.Create(ctx, CreateRequest{OwnerID: "u1", Name: "Main"})
	require.NoError(t, err)

	assert.Equal(t, "USD", acct.Currency)
	assert.Equal(t, DefaultMaxLeverage, acct.MaxLeverage)
	assert.True(t, acct.IsActive)
	assert.True(t, acct.Balance.Equal(dec("10000")))
	assert.True(t, acct.Equity.Equal(dec("10000")))
	assert.True(t, acct.MarginAvailable.Equal(dec("10000")))
	assert.True(t, acct.MarginUsed.IsZero())

	entries, err := l.List(ctx, acct.ID, storage.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryTypeDeposit, entries[0].Type)
	assert.Equal(t, SourceAccountCreation, entries[0].Metadata.Source)
	assert.True(t, entries[0].BalanceAfter.Equal(dec("10000")))

	report, err := l.Reconcile(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, report.IsReconciled)

	got, err := svc.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
}

func TestCreate_ZeroBalance(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()

	zero := decimal.Zero
	acct, err := svc.Create(ctx, CreateRequest{Name: "Empty", InitialBalance: &zero})
	require.NoError(t, err)
	assert.True(t, acct.Balance.IsZero())

	report, err := l.Reconcile(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, report.IsReconciled)
	assert.Zero(t, report.EntriesCount)
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newService(t)
	neg := dec("-1")

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing name", CreateRequest{}},
		{"leverage above limit", CreateRequest{Name: "x", MaxLeverage: 101}},
		{"negative leverage", CreateRequest{Name: "x", MaxLeverage: -2}},
		{"negative balance", CreateRequest{Name: "x", InitialBalance: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.req)
			assert.ErrorIs(t, err, storage.ErrInvalidInput)
		})
	}
}

func TestDepositWithdraw(t *testing.T) {
	svc, l, _ := newService(t)
	ctx := context.Background()

	acct, err := svc.Create(ctx, CreateRequest{Name: "Main"})
	require.NoError(t, err)

	_, err = svc.Deposit(ctx, acct.ID, dec("500"), "")
	require.NoError(t, err)

	entry, err := svc.Withdraw(ctx, acct.ID, dec("1500.25"), "payout")
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(dec("-1500.25")))
	assert.True(t, entry.BalanceAfter.Equal(dec("8999.75")))

	got, err := svc.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("8999.75")))
	assert.True(t, got.MarginAvailable.Equal(dec("8999.75")))

	_, err = svc.Withdraw(ctx, acct.ID, dec("9000"), "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = svc.Deposit(ctx, acct.ID, dec("0"), "")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = svc.Deposit(ctx, "missing", dec("1"), "")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	report, err := l.Reconcile(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, report.IsReconciled)
	assert.EqualValues(t, 3, report.EntriesCount)
}

func TestDeactivate(t *testing.T) {
	svc, _, store := newService(t)
	ctx := context.Background()

	acct, err := svc.Create(ctx, CreateRequest{OwnerID: "u1", Name: "Main"})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Positions().Insert(ctx, domain.NewPosition("p1", acct.ID, "btc", domain.PositionSideLong,
			dec("1"), dec("100"), 1, dec("100"), time.Unix(1, 0)))
	})
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, acct.ID)
	assert.ErrorIs(t, err, domain.ErrOpenPositions)

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.Positions().GetByID(ctx, "p1")
		if err != nil {
			return err
		}
		if _, err := p.Close(p.Size, p.EntryPrice, time.Unix(2, 0)); err != nil {
			return err
		}
		return tx.Positions().Update(ctx, p)
	})
	require.NoError(t, err)

	got, err := svc.Deactivate(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.Deposit(ctx, acct.ID, dec("1"), "")
	assert.ErrorIs(t, err, domain.ErrAccountInactive)

	listed, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}
