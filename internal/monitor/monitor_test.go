package monitor

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
	"papertrade/internal/pnl"
	"papertrade/internal/position"
	"papertrade/internal/storage"
	"papertrade/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newMonitor(t *testing.T) (*Monitor, *memory.Store, *memory.CandleStore) {
	t.Helper()
	store := memory.NewStore()
	candles := memory.NewCandleStore()
	guard := accountlock.New(accountlock.Options{})
	l := ledger.NewService(ledger.Options{Tx: store, Guard: guard})
	calc := pnl.NewCalculator(pnl.Options{Tx: store, Prices: candles, Guard: guard})
	book := position.NewBook(position.Options{Tx: store, Ledger: l, PnL: calc})

	tp := dec("51000")
	protected := domain.NewPosition("p-btc", "a1", "btc", domain.PositionSideLong,
		dec("1"), dec("50000"), 10, dec("5000"), time.Unix(1, 0))
	protected.TakeProfit = &tp
	plain := domain.NewPosition("p-eth", "a1", "eth", domain.PositionSideShort,
		dec("2"), dec("3000"), 10, dec("600"), time.Unix(2, 0))
	unpriced := domain.NewPosition("p-sol", "a1", "sol", domain.PositionSideLong,
		dec("10"), dec("150"), 10, dec("150"), time.Unix(3, 0))

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		acct := &domain.Account{
			ID:              "a1",
			Currency:        "USD",
			Balance:         dec("10000"),
			MarginUsed:      dec("5750"),
			MarginAvailable: dec("4250"),
			MaxLeverage:     10,
			IsActive:        true,
		}
		acct.RecomputeEquity()
		if err := tx.Accounts().Insert(ctx, acct); err != nil {
			return err
		}
		for _, p := range []*domain.Position{protected, plain, unpriced} {
			if err := tx.Positions().Insert(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	m := NewMonitor(Options{Tx: store, PnL: calc, Book: book, Interval: time.Millisecond})
	return m, store, candles
}

func TestSweep_MarksAndTriggers(t *testing.T) {
	m, store, candles := newMonitor(t)
	ctx := context.Background()
	candles.SetPrice("btc", domain.Interval1Min, dec("51500"), time.Now())
	candles.SetPrice("eth", domain.Interval1Min, dec("2900"), time.Now())

	stats, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Open: 3, Marked: 1, Triggered: 1}, stats)

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		btc, err := tx.Positions().GetByID(ctx, "p-btc")
		require.NoError(t, err)
		assert.False(t, btc.IsOpen)
		assert.True(t, btc.RealizedPnL.Equal(dec("1500")))

		eth, err := tx.Positions().GetByID(ctx, "p-eth")
		require.NoError(t, err)
		assert.True(t, eth.IsOpen)
		assert.True(t, eth.UnrealizedPnL.Equal(dec("200")))

		sol, err := tx.Positions().GetByID(ctx, "p-sol")
		require.NoError(t, err)
		assert.True(t, sol.UnrealizedPnL.IsZero())

		acct, err := tx.Accounts().GetByID(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, acct.Balance.Equal(dec("11500")))
		assert.True(t, acct.MarginUsed.Equal(dec("750")))

		entries, err := tx.Ledger().ListByAccount(ctx, "a1", storage.LedgerFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.CloseReasonTakeProfit, entries[0].Metadata.Reason)
		return nil
	})
	require.NoError(t, err)

	stats, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Open)
	assert.Zero(t, stats.Triggered)
}

func TestRun_StopsOnCancel(t *testing.T) {
	m, _, _ := newMonitor(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
