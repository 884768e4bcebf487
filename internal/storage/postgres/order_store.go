package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	q querier
}

// NewOrderStore creates an OrderStore outside a unit of work.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{q: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

const orderColumns = `
	id, account_id, instrument_id, order_type, side, size, price, stop_price, leverage, status,
	filled_size, fill_price, slippage, commission, margin_required, position_id,
	reject_reason, version, created_at, filled_at, canceled_at, rejected_at`

// Insert adds a new order with version 1. Returns ErrDuplicateKey if id exists.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, 1, $18, $19, $20, $21
		)
	`

	_, err := s.q.Exec(ctx, query,
		o.ID,
		o.AccountID,
		o.InstrumentID,
		string(o.Type),
		string(o.Side),
		o.Size,
		nullDecimal(o.Price),
		nullDecimal(o.StopPrice),
		o.Leverage,
		string(o.Status),
		o.FilledSize,
		nullDecimal(o.FillPrice),
		nullDecimal(o.Slippage),
		o.Commission,
		o.MarginRequired,
		o.PositionID,
		o.RejectReason,
		o.CreatedAt,
		o.FilledAt,
		o.CanceledAt,
		o.RejectedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	o.Version = 1
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return o, nil
}

// Update writes the execution fields if the stored version equals o.Version.
func (s *OrderStore) Update(ctx context.Context, o *domain.Order) error {
	query := `
		UPDATE orders SET
			status = $3, filled_size = $4, fill_price = $5, slippage = $6,
			commission = $7, margin_required = $8, position_id = $9, reject_reason = $10,
			filled_at = $11, canceled_at = $12, rejected_at = $13, version = version + 1
		WHERE id = $1 AND version = $2
	`

	tag, err := s.q.Exec(ctx, query,
		o.ID,
		o.Version,
		string(o.Status),
		o.FilledSize,
		nullDecimal(o.FillPrice),
		nullDecimal(o.Slippage),
		o.Commission,
		o.MarginRequired,
		o.PositionID,
		o.RejectReason,
		o.FilledAt,
		o.CanceledAt,
		o.RejectedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if err := casResult(ctx, s.q, "orders", o.ID, tag.RowsAffected()); err != nil {
		return err
	}
	o.Version++
	return nil
}

// ListByAccount retrieves orders of an account, newest first.
func (s *OrderStore) ListByAccount(ctx context.Context, accountID string, f storage.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1`
	args := []any{accountID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	page, args := limitOffset(len(args)+1, f.Limit, f.Offset, args)
	query += page

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

// scanOrder scans a single row into an Order.
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var orderType, side, status string
	var price, stopPrice, fillPrice, slippage decimal.NullDecimal
	err := row.Scan(
		&o.ID,
		&o.AccountID,
		&o.InstrumentID,
		&orderType,
		&side,
		&o.Size,
		&price,
		&stopPrice,
		&o.Leverage,
		&status,
		&o.FilledSize,
		&fillPrice,
		&slippage,
		&o.Commission,
		&o.MarginRequired,
		&o.PositionID,
		&o.RejectReason,
		&o.Version,
		&o.CreatedAt,
		&o.FilledAt,
		&o.CanceledAt,
		&o.RejectedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Type = domain.OrderType(orderType)
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	o.Price = decimalPtr(price)
	o.StopPrice = decimalPtr(stopPrice)
	o.FillPrice = decimalPtr(fillPrice)
	o.Slippage = decimalPtr(slippage)
	return &o, nil
}
