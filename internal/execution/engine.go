// Package execution turns pending orders into fills or rejections.
//
// One execution is one unit of work under the account lock: it prices the
// order, checks collateral, resolves positions, moves margin and posts the
// trade_pnl and commission entries. Either all of it commits or none of it.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/domain"
	"papertrade/internal/id"
	"papertrade/internal/ledger"
	"papertrade/internal/notify"
	"papertrade/internal/observability"
	"papertrade/internal/pnl"
	"papertrade/internal/position"
	"papertrade/internal/storage"
)

// Options configures an Engine.
type Options struct {
	Tx     storage.TxManager
	Ledger *ledger.Service
	PnL    *pnl.Calculator
	Params *Params        // nil means DefaultParams
	Jitter func() float64 // uniform sample in [0, 1); default math/rand
	Logger *zap.Logger
}

// Engine executes orders.
type Engine struct {
	tx     storage.TxManager
	ledger *ledger.Service
	pnl    *pnl.Calculator
	params Params
	jitter func() float64
	logger *zap.Logger
}

// NewEngine creates an Engine. Ledger and PnL must share one accountlock.Guard.
func NewEngine(opts Options) *Engine {
	params := DefaultParams()
	if opts.Params != nil {
		params = *opts.Params
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		tx:     opts.Tx,
		ledger: opts.Ledger,
		pnl:    opts.PnL,
		params: params,
		jitter: opts.Jitter,
		logger: opts.Logger,
	}
}

// Result describes the outcome of one execution.
type Result struct {
	Success          bool
	OrderID          string
	Status           domain.OrderStatus
	PositionID       string // opened position, or the closed one when nothing new opened
	ClosedPositionID string // opposite position closed by this order
	RealizedPnL      decimal.Decimal
	FillPrice        decimal.Decimal
	Slippage         decimal.Decimal
	Commission       decimal.Decimal
	MarginRequired   decimal.Decimal
	Rejection        *domain.RejectionError
}

// outcome collects what a committed execution must fan out.
type outcome struct {
	result    *Result
	order     *domain.Order
	account   *domain.Account
	opened    *domain.Position
	closed    *domain.Position
	closeFull bool
	entries   []*domain.LedgerEntry
}

// Execute fills or rejects a pending order.
//
// A rejection (no market data, insufficient margin) commits the order as
// rejected, moves no balances and returns the Result together with a
// *domain.RejectionError. Any other failure rolls the whole unit back.
func (e *Engine) Execute(ctx context.Context, orderID string) (*Result, error) {
	start := time.Now()

	accountID, err := e.orderAccount(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var out *outcome
	err = e.ledger.Guard().Do(ctx, accountID, func(ctx context.Context) error {
		return e.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			out, err = e.execute(ctx, tx, orderID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(ctx, out, time.Since(start))
	if out.result.Rejection != nil {
		return out.result, out.result.Rejection
	}
	return out.result, nil
}

func (e *Engine) execute(ctx context.Context, tx storage.Tx, orderID string) (*outcome, error) {
	order, err := loadOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrOrderNotPending, order.ID, order.Status)
	}
	acct, err := ledger.LoadAccount(ctx, tx, order.AccountID)
	if err != nil {
		return nil, err
	}
	inst, err := loadInstrument(ctx, tx, order.InstrumentID)
	if err != nil {
		return nil, err
	}

	out := &outcome{
		order:   order,
		account: acct,
		result:  &Result{OrderID: order.ID},
	}

	ref, ok, err := e.pnl.PriceIn(ctx, tx, inst.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return out, e.reject(ctx, tx, out, &domain.RejectionError{
			Kind:   domain.RejectionNoMarketData,
			Detail: fmt.Sprintf("no reference price for %s", inst.Symbol),
		})
	}

	q := Price(order, inst, ref, e.jitter(), e.params)
	out.result.FillPrice = q.FillPrice
	out.result.Slippage = q.Slippage
	out.result.Commission = q.Commission
	out.result.MarginRequired = q.MarginRequired

	if !acct.CanAfford(q.MarginRequired, q.Commission) {
		return out, e.reject(ctx, tx, out, &domain.RejectionError{
			Kind:      domain.RejectionInsufficientMargin,
			Detail:    "margin required plus commission exceeds available margin",
			Required:  q.Required(),
			Available: acct.MarginAvailable,
		})
	}

	if err := e.resolvePositions(ctx, tx, out, inst, q); err != nil {
		return nil, err
	}

	// Account effects of the fill. The full margin_required is pledged even
	// when part of the order only closed opposite exposure.
	acct.PledgeMargin(q.MarginRequired, q.Commission)
	fill := q.FillPrice
	size := order.Size
	commission, err := e.ledger.Post(ctx, tx, acct, ledger.AppendRequest{
		AccountID:   acct.ID,
		Type:        domain.EntryTypeCommission,
		Amount:      q.Commission.Neg(),
		OrderID:     order.ID,
		Description: fmt.Sprintf("Commission for order %s", order.ID),
		Metadata: domain.EntryMetadata{
			OrderType: order.Type,
			Side:      string(order.Side),
			Size:      &size,
			FillPrice: &fill,
		},
	})
	if err != nil {
		return nil, err
	}
	out.entries = append(out.entries, commission)

	if err := tx.Accounts().Update(ctx, acct); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	order.Fill(q.FillPrice, q.Slippage, q.Commission, q.MarginRequired, out.result.PositionID, e.ledger.Now())
	if err := tx.Orders().Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	out.result.Success = true
	out.result.Status = order.Status
	return out, nil
}

// resolvePositions closes an opposite position no larger than the order and
// opens a position for whatever size remains.
func (e *Engine) resolvePositions(ctx context.Context, tx storage.Tx, out *outcome, inst *domain.Instrument, q Quote) error {
	order, acct := out.order, out.account
	side := order.Side.PositionSide()
	remaining := order.Size

	opp, err := tx.Positions().FindOpen(ctx, acct.ID, inst.ID, side.Opposite())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		opp = nil
	case err != nil:
		return fmt.Errorf("find opposite position: %w", err)
	}

	if opp != nil && opp.Size.LessThanOrEqual(order.Size) {
		closeSize := opp.Size
		res, entry, err := position.Realize(ctx, tx, e.ledger, acct, opp, position.RealizeRequest{
			CloseSize: closeSize,
			ExitPrice: q.FillPrice,
			OrderID:   order.ID,
			Reason:    domain.CloseReasonOrder,
		})
		if err != nil {
			return err
		}
		out.closed = opp
		out.closeFull = res.FullyClosed
		out.entries = append(out.entries, entry)
		out.result.ClosedPositionID = opp.ID
		out.result.PositionID = opp.ID
		out.result.RealizedPnL = res.RealizedDelta
		remaining = remaining.Sub(closeSize)
	} else if opp != nil {
		e.logger.Warn("order smaller than opposite position opens a separate position",
			zap.String("order_id", order.ID),
			zap.String("opposite_position_id", opp.ID),
			zap.String("order_size", order.Size.String()),
			zap.String("position_size", opp.Size.String()),
		)
	}

	if !remaining.IsPositive() {
		return nil
	}

	now := e.ledger.Now()
	pos := domain.NewPosition(id.NewAt(now), acct.ID, inst.ID, side, remaining, q.FillPrice, order.Leverage,
		MarginRequired(remaining, q.FillPrice, order.Leverage), now)
	if err := tx.Positions().Insert(ctx, pos); err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	out.opened = pos
	out.result.PositionID = pos.ID
	return nil
}

// reject marks the order rejected inside tx. Nothing else is written.
func (e *Engine) reject(ctx context.Context, tx storage.Tx, out *outcome, rej *domain.RejectionError) error {
	out.order.Reject(rej.Error(), e.ledger.Now())
	if err := tx.Orders().Update(ctx, out.order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	out.result.Status = out.order.Status
	out.result.Rejection = rej
	return nil
}

func (e *Engine) afterCommit(ctx context.Context, out *outcome, elapsed time.Duration) {
	order := out.order
	at := e.ledger.Now()

	if out.result.Rejection != nil {
		observability.RecordOrderRejected(string(order.Type), string(out.result.Rejection.Kind), elapsed.Seconds())
		e.logger.Info("order rejected",
			zap.String("order_id", order.ID),
			zap.String("account_id", order.AccountID),
			zap.String("kind", string(out.result.Rejection.Kind)),
			zap.String("required", out.result.Rejection.Required.String()),
			zap.String("available", out.result.Rejection.Available.String()),
		)
		e.ledger.Publish(notify.Event{Type: notify.EventOrderRejected, AccountID: order.AccountID, Payload: order, At: at})
		return
	}

	commission, _ := out.result.Commission.Float64()
	observability.RecordOrderFilled(string(order.Type), commission, elapsed.Seconds())
	e.logger.Info("order filled",
		zap.String("order_id", order.ID),
		zap.String("account_id", order.AccountID),
		zap.String("side", string(order.Side)),
		zap.String("size", order.Size.String()),
		zap.String("fill_price", out.result.FillPrice.String()),
		zap.String("slippage", out.result.Slippage.String()),
		zap.String("commission", out.result.Commission.String()),
		zap.String("position_id", out.result.PositionID),
	)

	e.ledger.AfterCommit(ctx, out.account, out.entries...)
	if out.closed != nil {
		position.PublishClose(e.ledger, out.closed, out.result.RealizedPnL, out.closeFull, domain.CloseReasonOrder)
	}
	if out.opened != nil {
		observability.RecordPositionOpened()
		e.ledger.Publish(notify.Event{Type: notify.EventPositionOpened, AccountID: order.AccountID, Payload: out.opened, At: at})
	}
	e.ledger.Publish(notify.Event{Type: notify.EventOrderFilled, AccountID: order.AccountID, Payload: order, At: at})
}

func (e *Engine) orderAccount(ctx context.Context, orderID string) (string, error) {
	var accountID string
	err := e.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		o, err := loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		accountID = o.AccountID
		return nil
	})
	return accountID, err
}

func loadOrder(ctx context.Context, tx storage.Tx, orderID string) (*domain.Order, error) {
	o, err := tx.Orders().GetByID(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func loadInstrument(ctx context.Context, tx storage.Tx, instrumentID string) (*domain.Instrument, error) {
	inst, err := tx.Instruments().GetByID(ctx, instrumentID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstrumentNotFound, instrumentID)
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	return inst, nil
}
