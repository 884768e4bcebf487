package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// InstrumentStore implements storage.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	q querier
}

// NewInstrumentStore creates an InstrumentStore outside a unit of work.
func NewInstrumentStore(pool *Pool) *InstrumentStore {
	return &InstrumentStore{q: pool}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

const instrumentColumns = `
	id, symbol, name, instrument_type, base_currency, quote_currency,
	tick_size, contract_size, base_spread, slippage_factor, min_size, max_size,
	is_active, is_tradeable, created_at`

// Insert adds a new instrument. Returns ErrDuplicateKey if id or symbol exists.
func (s *InstrumentStore) Insert(ctx context.Context, i *domain.Instrument) error {
	query := `
		INSERT INTO instruments (` + instrumentColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.q.Exec(ctx, query,
		i.ID,
		i.Symbol,
		i.Name,
		i.InstrumentType,
		i.BaseCurrency,
		i.QuoteCurrency,
		i.TickSize,
		i.ContractSize,
		i.BaseSpread,
		i.SlippageFactor,
		i.MinSize,
		nullDecimal(i.MaxSize),
		i.IsActive,
		i.IsTradeable,
		i.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

// GetByID retrieves an instrument by its ID. Returns ErrNotFound if not exists.
func (s *InstrumentStore) GetByID(ctx context.Context, id string) (*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE id = $1`

	i, err := scanInstrument(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument by id: %w", err)
	}
	return i, nil
}

// GetBySymbol retrieves an instrument by symbol, case-insensitively.
func (s *InstrumentStore) GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE upper(symbol) = upper($1)`

	i, err := scanInstrument(s.q.QueryRow(ctx, query, symbol))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument by symbol: %w", err)
	}
	return i, nil
}

// List retrieves all instruments ordered by symbol.
func (s *InstrumentStore) List(ctx context.Context) ([]*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments ORDER BY symbol ASC`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []*domain.Instrument
	for rows.Next() {
		i, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument row: %w", err)
		}
		instruments = append(instruments, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument rows: %w", err)
	}
	return instruments, nil
}

// scanInstrument scans a single row into an Instrument.
func scanInstrument(row pgx.Row) (*domain.Instrument, error) {
	var i domain.Instrument
	var maxSize decimal.NullDecimal
	err := row.Scan(
		&i.ID,
		&i.Symbol,
		&i.Name,
		&i.InstrumentType,
		&i.BaseCurrency,
		&i.QuoteCurrency,
		&i.TickSize,
		&i.ContractSize,
		&i.BaseSpread,
		&i.SlippageFactor,
		&i.MinSize,
		&maxSize,
		&i.IsActive,
		&i.IsTradeable,
		&i.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	i.MaxSize = decimalPtr(maxSize)
	return &i, nil
}
