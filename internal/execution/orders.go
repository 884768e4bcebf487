package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/domain"
	"papertrade/internal/id"
	"papertrade/internal/ledger"
	"papertrade/internal/notify"
	"papertrade/internal/observability"
	"papertrade/internal/storage"
)

// OrderRequest is a new order as submitted by a caller.
type OrderRequest struct {
	AccountID    string
	InstrumentID string
	Type         domain.OrderType
	Side         domain.OrderSide
	Size         decimal.Decimal
	Price        *decimal.Decimal // required for limit and stop_limit
	StopPrice    *decimal.Decimal // required for stop and stop_limit
	Leverage     int              // 0 means 1
}

// Submit validates req against the account and instrument, stores a pending
// order and executes it. Validation failures wrap domain.ErrInvalidOrder,
// ErrAccountInactive or ErrInstrumentNotTradeable and store nothing.
func (e *Engine) Submit(ctx context.Context, req OrderRequest) (*Result, error) {
	if req.Leverage == 0 {
		req.Leverage = 1
	}
	if err := validateShape(req); err != nil {
		return nil, err
	}

	var orderID string
	err := e.ledger.Guard().Do(ctx, req.AccountID, func(ctx context.Context) error {
		return e.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			acct, err := ledger.LoadAccount(ctx, tx, req.AccountID)
			if err != nil {
				return err
			}
			inst, err := loadInstrument(ctx, tx, req.InstrumentID)
			if err != nil {
				return err
			}
			if err := validateAgainst(req, acct, inst); err != nil {
				return err
			}

			now := e.ledger.Now()
			order := &domain.Order{
				ID:           id.NewAt(now),
				AccountID:    acct.ID,
				InstrumentID: inst.ID,
				Type:         req.Type,
				Side:         req.Side,
				Size:         req.Size,
				Price:        req.Price,
				StopPrice:    req.StopPrice,
				Leverage:     req.Leverage,
				Status:       domain.OrderStatusPending,
				CreatedAt:    now,
			}
			if err := tx.Orders().Insert(ctx, order); err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
			orderID = order.ID
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return e.Execute(ctx, orderID)
}

func validateShape(req OrderRequest) error {
	switch {
	case req.AccountID == "":
		return fmt.Errorf("%w: account id is required", domain.ErrInvalidOrder)
	case req.InstrumentID == "":
		return fmt.Errorf("%w: instrument id is required", domain.ErrInvalidOrder)
	case !req.Type.Valid():
		return fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidOrder, req.Type)
	case !req.Side.Valid():
		return fmt.Errorf("%w: unknown side %q", domain.ErrInvalidOrder, req.Side)
	case !req.Size.IsPositive():
		return fmt.Errorf("%w: size must be positive", domain.ErrInvalidOrder)
	case req.Leverage < 1:
		return fmt.Errorf("%w: leverage must be at least 1", domain.ErrInvalidOrder)
	}

	needsPrice := req.Type == domain.OrderTypeLimit || req.Type == domain.OrderTypeStopLimit
	if needsPrice && (req.Price == nil || !req.Price.IsPositive()) {
		return fmt.Errorf("%w: %s order requires a positive price", domain.ErrInvalidOrder, req.Type)
	}
	needsStop := req.Type == domain.OrderTypeStop || req.Type == domain.OrderTypeStopLimit
	if needsStop && (req.StopPrice == nil || !req.StopPrice.IsPositive()) {
		return fmt.Errorf("%w: %s order requires a positive stop price", domain.ErrInvalidOrder, req.Type)
	}
	return nil
}

func validateAgainst(req OrderRequest, acct *domain.Account, inst *domain.Instrument) error {
	if !acct.IsActive {
		return fmt.Errorf("%w: %s", domain.ErrAccountInactive, acct.ID)
	}
	if !inst.IsActive || !inst.IsTradeable {
		return fmt.Errorf("%w: %s", domain.ErrInstrumentNotTradeable, inst.Symbol)
	}
	if !inst.SizeAllowed(req.Size) {
		return fmt.Errorf("%w: size %s outside instrument bounds", domain.ErrInvalidOrder, req.Size.String())
	}
	if req.Leverage > acct.MaxLeverage {
		return fmt.Errorf("%w: leverage %d exceeds account maximum %d", domain.ErrInvalidOrder, req.Leverage, acct.MaxLeverage)
	}
	return nil
}

// Cancel moves a pending order to canceled. Terminal orders return
// domain.ErrOrderNotPending.
func (e *Engine) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	accountID, err := e.orderAccount(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = e.ledger.Guard().Do(ctx, accountID, func(ctx context.Context) error {
		return e.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			o, err := loadOrder(ctx, tx, orderID)
			if err != nil {
				return err
			}
			if o.Status != domain.OrderStatusPending {
				return fmt.Errorf("%w: %s is %s", domain.ErrOrderNotPending, o.ID, o.Status)
			}
			o.Cancel(e.ledger.Now())
			if err := tx.Orders().Update(ctx, o); err != nil {
				return fmt.Errorf("update order: %w", err)
			}
			order = o
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	observability.RecordOrderCanceled(string(order.Type))
	e.logger.Info("order canceled", zap.String("order_id", order.ID), zap.String("account_id", order.AccountID))
	e.ledger.Publish(notify.Event{Type: notify.EventOrderCanceled, AccountID: order.AccountID, Payload: order, At: *order.CanceledAt})
	return order, nil
}

// GetOrder returns a single order.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := e.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		order, err = loadOrder(ctx, tx, orderID)
		return err
	})
	return order, err
}

// ListOrders returns an account's orders, newest first.
func (e *Engine) ListOrders(ctx context.Context, accountID string, f storage.OrderFilter) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := e.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := ledger.LoadAccount(ctx, tx, accountID); err != nil {
			return err
		}
		var err error
		orders, err = tx.Orders().ListByAccount(ctx, accountID, f)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("list orders: %w", err)
		}
		return nil
	})
	return orders, err
}
