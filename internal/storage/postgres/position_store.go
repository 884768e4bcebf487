package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	q querier
}

// NewPositionStore creates a PositionStore outside a unit of work.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{q: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	id, account_id, instrument_id, side, size, entry_price, current_price,
	unrealized_pnl, realized_pnl, leverage, margin_used, stop_loss, take_profit,
	is_open, version, opened_at, closed_at`

// Insert adds a new position with version 1. Returns ErrDuplicateKey if id exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO positions (` + positionColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16)
	`

	_, err := s.q.Exec(ctx, query,
		p.ID,
		p.AccountID,
		p.InstrumentID,
		string(p.Side),
		p.Size,
		p.EntryPrice,
		p.CurrentPrice,
		p.UnrealizedPnL,
		p.RealizedPnL,
		p.Leverage,
		p.MarginUsed,
		nullDecimal(p.StopLoss),
		nullDecimal(p.TakeProfit),
		p.IsOpen,
		p.OpenedAt,
		p.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	p.Version = 1
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// Update writes the mutable fields if the stored version equals p.Version.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	query := `
		UPDATE positions SET
			size = $3, current_price = $4, unrealized_pnl = $5, realized_pnl = $6,
			margin_used = $7, stop_loss = $8, take_profit = $9, is_open = $10,
			closed_at = $11, version = version + 1
		WHERE id = $1 AND version = $2
	`

	tag, err := s.q.Exec(ctx, query,
		p.ID,
		p.Version,
		p.Size,
		p.CurrentPrice,
		p.UnrealizedPnL,
		p.RealizedPnL,
		p.MarginUsed,
		nullDecimal(p.StopLoss),
		nullDecimal(p.TakeProfit),
		p.IsOpen,
		p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if err := casResult(ctx, s.q, "positions", p.ID, tag.RowsAffected()); err != nil {
		return err
	}
	p.Version++
	return nil
}

// FindOpen retrieves the oldest open position for (account, instrument, side).
func (s *PositionStore) FindOpen(ctx context.Context, accountID, instrumentID string, side domain.PositionSide) (*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + ` FROM positions
		WHERE account_id = $1 AND instrument_id = $2 AND side = $3 AND is_open
		ORDER BY opened_at ASC, id ASC
		LIMIT 1
	`

	p, err := scanPosition(s.q.QueryRow(ctx, query, accountID, instrumentID, string(side)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find open position: %w", err)
	}
	return p, nil
}

// ListByAccount retrieves positions of an account, newest first.
func (s *PositionStore) ListByAccount(ctx context.Context, accountID string, f storage.PositionFilter) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE account_id = $1`
	args := []any{accountID}
	if f.IsOpen != nil {
		args = append(args, *f.IsOpen)
		query += fmt.Sprintf(" AND is_open = $%d", len(args))
	}
	query += " ORDER BY opened_at DESC, id DESC"
	page, args := limitOffset(len(args)+1, f.Limit, f.Offset, args)
	query += page

	return s.queryPositions(ctx, query, args...)
}

// ListOpen retrieves all open positions across accounts, ordered by opened_at ASC.
func (s *PositionStore) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE is_open ORDER BY opened_at ASC, id ASC`
	return s.queryPositions(ctx, query)
}

func (s *PositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]*domain.Position, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var side string
	var stopLoss, takeProfit decimal.NullDecimal
	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.InstrumentID,
		&side,
		&p.Size,
		&p.EntryPrice,
		&p.CurrentPrice,
		&p.UnrealizedPnL,
		&p.RealizedPnL,
		&p.Leverage,
		&p.MarginUsed,
		&stopLoss,
		&takeProfit,
		&p.IsOpen,
		&p.Version,
		&p.OpenedAt,
		&p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Side = domain.PositionSide(side)
	p.StopLoss = decimalPtr(stopLoss)
	p.TakeProfit = decimalPtr(takeProfit)
	return &p, nil
}
