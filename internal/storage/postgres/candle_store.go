package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
// Candles are reference data and are written outside units of work.
type CandleStore struct {
	pool *Pool
	q    querier // pool, or the transaction of InTx
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool, q: pool}
}

// Compile-time interface checks.
var (
	_ storage.CandleStore      = (*CandleStore)(nil)
	_ storage.TxPriceReference = (*CandleStore)(nil)
)

// InTx returns a reader bound to the connection of a unit of work opened
// by Store.WithinTx.
func (s *CandleStore) InTx(unit storage.Tx) storage.PriceReference {
	t, ok := unit.(*tx)
	if !ok {
		return s
	}
	return &CandleStore{pool: s.pool, q: t.q}
}

// LatestPrice returns the close of the newest candle for (instrument, interval).
func (s *CandleStore) LatestPrice(ctx context.Context, instrumentID, interval string) (decimal.Decimal, error) {
	query := `
		SELECT close FROM candles
		WHERE instrument_id = $1 AND timeframe = $2
		ORDER BY open_time DESC
		LIMIT 1
	`

	var price decimal.Decimal
	err := s.q.QueryRow(ctx, query, instrumentID, interval).Scan(&price)
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, storage.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("latest candle price: %w", err)
	}
	return price, nil
}

// InsertBulk adds multiple candles atomically.
// Returns ErrDuplicateKey if any (instrument_id, timeframe, open_time) exists.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO candles (instrument_id, timeframe, open_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(query,
			c.InstrumentID,
			c.Interval,
			c.OpenTime,
			c.Open,
			c.High,
			c.Low,
			c.Close,
			c.Volume,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range candles {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert candle: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves candles with open_time within [start, end], ordered ASC.
func (s *CandleStore) GetByTimeRange(ctx context.Context, instrumentID, interval string, start, end time.Time) ([]*domain.Candle, error) {
	query := `
		SELECT instrument_id, timeframe, open_time, open, high, low, close, volume
		FROM candles
		WHERE instrument_id = $1 AND timeframe = $2 AND open_time >= $3 AND open_time <= $4
		ORDER BY open_time ASC
	`

	rows, err := s.q.Query(ctx, query, instrumentID, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(
			&c.InstrumentID,
			&c.Interval,
			&c.OpenTime,
			&c.Open,
			&c.High,
			&c.Low,
			&c.Close,
			&c.Volume,
		); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.OpenTime = c.OpenTime.UTC()
		candles = append(candles, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}
	return candles, nil
}
