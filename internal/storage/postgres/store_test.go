package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

func TestStore_AccountVersioning(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	seedAccountAndInstrument(t, store)
	ctx := context.Background()

	var stale *domain.Account
	err := store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := tx.Accounts().GetByID(ctx, "a1")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), a.Version)
		copied := *a
		stale = &copied

		a.Balance = decimal.RequireFromString("9990.5")
		if err := tx.Accounts().Update(ctx, a); err != nil {
			return err
		}
		assert.Equal(t, int64(2), a.Version)
		return nil
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Accounts().Update(ctx, stale)
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	err = store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Accounts().Update(ctx, &domain.Account{ID: "missing", Version: 1, MaxLeverage: 1})
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := NewAccountStore(pool).GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("9990.5")))
	assert.Equal(t, int64(2), got.Version)
}

func TestStore_RollbackOnError(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	seedAccountAndInstrument(t, store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Ledger().Insert(ctx, &domain.LedgerEntry{
			ID:           "e1",
			AccountID:    "a1",
			Type:         domain.EntryTypeDeposit,
			Amount:       decimal.NewFromInt(5),
			BalanceAfter: decimal.NewFromInt(10005),
			Currency:     "USD",
			Metadata:     domain.EntryMetadata{SchemaVersion: 1, Source: "operator"},
			CreatedAt:    testEpoch,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	totals, err := NewLedgerStore(pool).Totals(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.Count)
	assert.True(t, totals.Sum.IsZero())
}

func TestInstrumentStore_SymbolIsCaseInsensitive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	seedAccountAndInstrument(t, store)
	ctx := context.Background()

	instruments := NewInstrumentStore(pool)
	got, err := instruments.GetBySymbol(ctx, "btc-usd")
	require.NoError(t, err)
	assert.Equal(t, "btc", got.ID)
	assert.Nil(t, got.MaxSize)

	dup := *got
	dup.ID = "btc2"
	dup.Symbol = "btc-usd"
	assert.ErrorIs(t, instruments.Insert(ctx, &dup), storage.ErrDuplicateKey)

	_, err = instruments.GetBySymbol(ctx, "ETH-USD")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOrderStore_RoundTripAndFilter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	seedAccountAndInstrument(t, store)
	ctx := context.Background()
	orders := NewOrderStore(pool)

	limit := decimal.NewFromInt(49000)
	o1 := &domain.Order{
		ID: "o1", AccountID: "a1", InstrumentID: "btc",
		Type: domain.OrderTypeLimit, Side: domain.OrderSideBuy,
		Size: decimal.NewFromInt(1), Price: &limit, Leverage: 10,
		Status: domain.OrderStatusPending, CreatedAt: testEpoch,
	}
	o2 := &domain.Order{
		ID: "o2", AccountID: "a1", InstrumentID: "btc",
		Type: domain.OrderTypeMarket, Side: domain.OrderSideSell,
		Size: decimal.RequireFromString("0.5"), Leverage: 1,
		Status: domain.OrderStatusPending, CreatedAt: testEpoch.Add(1),
	}
	require.NoError(t, orders.Insert(ctx, o1))
	require.NoError(t, orders.Insert(ctx, o2))
	assert.ErrorIs(t, orders.Insert(ctx, o1), storage.ErrDuplicateKey)

	o1.Fill(limit, decimal.Zero, decimal.RequireFromString("9.8"), decimal.NewFromInt(4900), "p1", testEpoch.Add(2))
	require.NoError(t, orders.Update(ctx, o1))

	got, err := orders.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	require.NotNil(t, got.FillPrice)
	assert.True(t, got.FillPrice.Equal(limit))
	assert.True(t, got.Commission.Equal(decimal.RequireFromString("9.8")))
	assert.Equal(t, "p1", got.PositionID)
	assert.Equal(t, int64(2), got.Version)
	assert.Nil(t, got.StopPrice)

	all, err := orders.ListByAccount(ctx, "a1", storage.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "o2", all[0].ID)

	pending, err := orders.ListByAccount(ctx, "a1", storage.OrderFilter{Status: domain.OrderStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "o2", pending[0].ID)

	paged, err := orders.ListByAccount(ctx, "a1", storage.OrderFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "o1", paged[0].ID)
}

func TestPositionStore_FindOpenAndClose(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	seedAccountAndInstrument(t, store)
	ctx := context.Background()
	positions := NewPositionStore(pool)

	older := domain.NewPosition("p1", "a1", "btc", domain.PositionSideLong,
		decimal.NewFromInt(1), decimal.NewFromInt(50000), 10, decimal.NewFromInt(5000), testEpoch)
	older.TakeProfit = ptr(decimal.NewFromInt(51000))
	newer := domain.NewPosition("p2", "a1", "btc", domain.PositionSideLong,
		decimal.NewFromInt(2), decimal.NewFromInt(50500), 10, decimal.NewFromInt(10100), testEpoch.Add(1))
	require.NoError(t, positions.Insert(ctx, older))
	require.NoError(t, positions.Insert(ctx, newer))

	found, err := positions.FindOpen(ctx, "a1", "btc", domain.PositionSideLong)
	require.NoError(t, err)
	assert.Equal(t, "p1", found.ID)
	require.NotNil(t, found.TakeProfit)
	assert.True(t, found.TakeProfit.Equal(decimal.NewFromInt(51000)))

	_, err = positions.FindOpen(ctx, "a1", "btc", domain.PositionSideShort)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = found.Close(decimal.NewFromInt(1), decimal.NewFromInt(51000), testEpoch.Add(2))
	require.NoError(t, err)
	require.NoError(t, positions.Update(ctx, found))

	open, err := positions.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "p2", open[0].ID)

	closed, err := positions.ListByAccount(ctx, "a1", storage.PositionFilter{IsOpen: ptr(false)})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].RealizedPnL.Equal(decimal.NewFromInt(1000)))
	assert.NotNil(t, closed[0].ClosedAt)
}

func TestLedgerStore_OrderingAndAppendOnly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(pool)
	seedAccountAndInstrument(t, store)
	ctx := context.Background()
	ledger := NewLedgerStore(pool)

	size := decimal.NewFromInt(1)
	fill := decimal.RequireFromString("50100.05")
	entries := []*domain.LedgerEntry{
		{
			ID: "e1", AccountID: "a1", Type: domain.EntryTypeDeposit,
			Amount: decimal.NewFromInt(10000), BalanceAfter: decimal.NewFromInt(10000), Currency: "USD",
			Metadata:  domain.EntryMetadata{SchemaVersion: 1, Source: "account_creation"},
			CreatedAt: testEpoch,
		},
		{
			ID: "e2", AccountID: "a1", Type: domain.EntryTypeCommission, OrderID: "o1",
			Amount: decimal.RequireFromString("-10.02001"), BalanceAfter: decimal.RequireFromString("9989.97999"), Currency: "USD",
			Metadata: domain.EntryMetadata{
				SchemaVersion: 1, OrderType: domain.OrderTypeMarket, Side: "buy", Size: &size, FillPrice: &fill,
			},
			CreatedAt: testEpoch.Add(1),
		},
	}
	for _, e := range entries {
		require.NoError(t, ledger.Insert(ctx, e))
	}

	listed, err := ledger.ListByAccount(ctx, "a1", storage.LedgerFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "e2", listed[0].ID)
	assert.Equal(t, domain.OrderTypeMarket, listed[0].Metadata.OrderType)
	require.NotNil(t, listed[0].Metadata.FillPrice)
	assert.True(t, listed[0].Metadata.FillPrice.Equal(fill))

	deposits, err := ledger.ListByAccount(ctx, "a1", storage.LedgerFilter{Type: domain.EntryTypeDeposit})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, "account_creation", deposits[0].Metadata.Source)

	latest, err := ledger.Latest(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, latest.BalanceAfter.Equal(decimal.RequireFromString("9989.97999")))

	totals, err := ledger.Totals(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Count)
	assert.True(t, totals.Sum.Equal(decimal.RequireFromString("9989.97999")))

	_, err = pool.Exec(ctx, "UPDATE ledger_entries SET amount = 0 WHERE id = 'e1'")
	assert.Error(t, err, "ledger rows must be immutable")

	_, err = ledger.Latest(ctx, "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCandleStore_LatestPrice(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	candles := NewCandleStore(pool)

	_, err := candles.LatestPrice(ctx, "btc", domain.Interval1Min)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bar := func(minute int, closePrice int64) *domain.Candle {
		p := decimal.NewFromInt(closePrice)
		return &domain.Candle{
			InstrumentID: "btc", Interval: domain.Interval1Min,
			OpenTime: testEpoch.Add(time.Minute * time.Duration(minute)),
			Open:     p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1),
		}
	}
	require.NoError(t, candles.InsertBulk(ctx, []*domain.Candle{bar(0, 50000), bar(2, 50200), bar(1, 50100)}))

	price, err := candles.LatestPrice(ctx, "btc", domain.Interval1Min)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(50200)))

	err = candles.InsertBulk(ctx, []*domain.Candle{bar(3, 1), bar(2, 1)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	ranged, err := candles.GetByTimeRange(ctx, "btc", domain.Interval1Min, testEpoch, testEpoch.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, ranged, 3, "failed batch must not leave partial rows")
	assert.True(t, ranged[0].OpenTime.Equal(testEpoch))
}
