package position

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
	"papertrade/internal/notify"
	"papertrade/internal/pnl"
	"papertrade/internal/storage"
	"papertrade/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store    *memory.Store
	candles  *memory.CandleStore
	ledger   *ledger.Service
	book     *Book
	recorder *notify.Recorder
}

// newFixture funds a1 with 10000 cash and one long BTC position of size
// units at 50000 with 10x leverage.
func newFixture(t *testing.T, size string) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		candles:  memory.NewCandleStore(),
		recorder: &notify.Recorder{},
	}
	guard := accountlock.New(accountlock.Options{})
	f.ledger = ledger.NewService(ledger.Options{Tx: f.store, Guard: guard, Broadcaster: f.recorder})
	calc := pnl.NewCalculator(pnl.Options{Tx: f.store, Prices: f.candles, Guard: guard})
	f.book = NewBook(Options{Tx: f.store, Ledger: f.ledger, PnL: calc})

	margin := dec(size).Mul(dec("5000"))
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		acct := &domain.Account{
			ID:              "a1",
			Currency:        "USD",
			Balance:         dec("10000"),
			MarginUsed:      margin,
			MarginAvailable: dec("10000").Sub(margin),
			MaxLeverage:     10,
			IsActive:        true,
		}
		acct.RecomputeEquity()
		if err := tx.Accounts().Insert(ctx, acct); err != nil {
			return err
		}
		return tx.Positions().Insert(ctx, domain.NewPosition("p1", "a1", "btc", domain.PositionSideLong,
			dec(size), dec("50000"), 10, margin, time.Unix(1, 0)))
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) setPrice(price string) {
	f.candles.SetPrice("btc", domain.Interval1Min, dec(price), time.Now())
}

func (f *fixture) account(t *testing.T) *domain.Account {
	t.Helper()
	var acct *domain.Account
	_ = f.store.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		acct, err = tx.Accounts().GetByID(ctx, "a1")
		require.NoError(t, err)
		return nil
	})
	return acct
}

func TestClose_Full(t *testing.T) {
	f := newFixture(t, "1")
	f.setPrice("50500")

	res, err := f.book.Close(context.Background(), "p1", nil)
	require.NoError(t, err)

	assert.True(t, res.FullyClosed)
	assert.True(t, res.RealizedPnL.Equal(dec("500")))
	assert.False(t, res.Position.IsOpen)
	assert.True(t, res.Position.UnrealizedPnL.IsZero())
	assert.True(t, res.Position.RealizedPnL.Equal(dec("500")))
	assert.NotNil(t, res.Position.ClosedAt)

	acct := f.account(t)
	assert.True(t, acct.Balance.Equal(dec("10500")))
	assert.True(t, acct.MarginUsed.IsZero())
	assert.True(t, acct.MarginAvailable.Equal(dec("10000")))
	assert.True(t, acct.Equity.Equal(dec("10500")))

	require.NotNil(t, res.Entry)
	assert.Equal(t, domain.EntryTypeTradePnL, res.Entry.Type)
	assert.True(t, res.Entry.BalanceAfter.Equal(dec("10500")))
	assert.Equal(t, "p1", res.Entry.PositionID)
	assert.True(t, res.Entry.Metadata.EntryPrice.Equal(dec("50000")))
	assert.True(t, res.Entry.Metadata.ExitPrice.Equal(dec("50500")))
	assert.True(t, res.Entry.Metadata.Size.Equal(dec("1")))
	assert.Equal(t, domain.CloseReasonManual, res.Entry.Metadata.Reason)

	report, err := f.ledger.Reconcile(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, report.IsReconciled)

	assert.Len(t, f.recorder.OfType(notify.EventPositionClosed), 1)

	_, err = f.book.Close(context.Background(), "p1", nil)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)
}

func TestClose_Partial(t *testing.T) {
	f := newFixture(t, "1")
	f.setPrice("50500")

	size := dec("0.4")
	res, err := f.book.Close(context.Background(), "p1", &size)
	require.NoError(t, err)

	assert.False(t, res.FullyClosed)
	assert.True(t, res.Position.IsOpen)
	assert.True(t, res.RealizedPnL.Equal(dec("200")))
	assert.True(t, res.Position.Size.Equal(dec("0.6")))
	assert.True(t, res.Position.MarginUsed.Equal(dec("3000")))
	assert.True(t, res.Position.UnrealizedPnL.Equal(dec("300")))

	acct := f.account(t)
	assert.True(t, acct.Balance.Equal(dec("10200")))
	assert.True(t, acct.MarginUsed.Equal(dec("3000")))
	assert.True(t, acct.MarginAvailable.Equal(dec("7000")))
	assert.True(t, acct.Equity.Equal(dec("13200")))
	assert.Len(t, f.recorder.OfType(notify.EventPositionUpdate), 1)
}

func TestClose_PartialsSumToFull(t *testing.T) {
	full := newFixture(t, "3")
	full.setPrice("50123.45")
	fullRes, err := full.book.Close(context.Background(), "p1", nil)
	require.NoError(t, err)

	f := newFixture(t, "3")
	f.setPrice("50123.45")
	sum := decimal.Zero
	for _, s := range []string{"0.5", "1.25", "1.25"} {
		size := dec(s)
		res, err := f.book.Close(context.Background(), "p1", &size)
		require.NoError(t, err)
		sum = sum.Add(res.RealizedPnL)
	}

	assert.True(t, sum.Equal(fullRes.RealizedPnL), "partials %s != full %s", sum, fullRes.RealizedPnL)
	assert.True(t, f.account(t).Balance.Equal(full.account(t).Balance))
	assert.True(t, f.account(t).MarginUsed.IsZero())
}

func TestClose_OversizedIsFull(t *testing.T) {
	f := newFixture(t, "1")
	f.setPrice("49000")

	size := dec("5")
	res, err := f.book.Close(context.Background(), "p1", &size)
	require.NoError(t, err)
	assert.True(t, res.FullyClosed)
	assert.True(t, res.RealizedPnL.Equal(dec("-1000")))
	assert.True(t, f.account(t).Balance.Equal(dec("9000")))
}

func TestClose_NoPriceUsesLastMark(t *testing.T) {
	f := newFixture(t, "1")

	res, err := f.book.Close(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.True(t, res.FullyClosed)
	assert.True(t, res.RealizedPnL.IsZero())
	assert.True(t, res.Entry.Metadata.ExitPrice.Equal(dec("50000")))
}

func TestClose_Errors(t *testing.T) {
	f := newFixture(t, "1")
	ctx := context.Background()

	zero := decimal.Zero
	_, err := f.book.Close(ctx, "p1", &zero)
	assert.ErrorIs(t, err, domain.ErrInvalidCloseSize)

	_, err = f.book.Close(ctx, "missing", nil)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestUpdateProtectionAndTrigger(t *testing.T) {
	f := newFixture(t, "1")
	ctx := context.Background()

	sl, tp := dec("49000"), dec("52000")
	pos, err := f.book.UpdateProtection(ctx, "p1", &sl, &tp)
	require.NoError(t, err)
	assert.True(t, pos.StopLoss.Equal(sl))
	assert.True(t, pos.TakeProfit.Equal(tp))

	f.setPrice("50000")
	res, err := f.book.CloseTriggered(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, res, "nothing crossed")

	f.setPrice("52100")
	res, err = f.book.CloseTriggered(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.FullyClosed)
	assert.Equal(t, domain.CloseReasonTakeProfit, res.Entry.Metadata.Reason)
	assert.True(t, res.RealizedPnL.Equal(dec("2100")))

	_, err = f.book.UpdateProtection(ctx, "p1", &sl, nil)
	assert.ErrorIs(t, err, domain.ErrPositionClosed)

	neg := dec("-1")
	_, err = f.book.UpdateProtection(ctx, "p1", &neg, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestCloseTriggered_NoPriceNeverFires(t *testing.T) {
	f := newFixture(t, "1")
	ctx := context.Background()

	sl := dec("60000")
	_, err := f.book.UpdateProtection(ctx, "p1", &sl, nil)
	require.NoError(t, err)

	res, err := f.book.CloseTriggered(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestListByAccount(t *testing.T) {
	f := newFixture(t, "1")

	open := true
	list, err := f.book.ListByAccount(context.Background(), "a1", storage.PositionFilter{IsOpen: &open})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.book.ListByAccount(context.Background(), "missing", storage.PositionFilter{})
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}
