package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
// The table is a ReplacingMergeTree, so uniqueness of
// (instrument_id, timeframe, open_time) is checked before insert.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// LatestPrice returns the close of the newest candle for (instrument, interval).
func (s *CandleStore) LatestPrice(ctx context.Context, instrumentID, interval string) (decimal.Decimal, error) {
	query := `
		SELECT close FROM candles FINAL
		WHERE instrument_id = ? AND timeframe = ?
		ORDER BY open_time DESC
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, instrumentID, interval)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query latest candle: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return decimal.Zero, fmt.Errorf("iterate latest candle: %w", err)
		}
		return decimal.Zero, storage.ErrNotFound
	}
	var price decimal.Decimal
	if err := rows.Scan(&price); err != nil {
		return decimal.Zero, fmt.Errorf("scan latest candle: %w", err)
	}
	return price, nil
}

// InsertBulk adds multiple candles. Fails entire batch on duplicate
// (instrument_id, timeframe, open_time), within the batch or against stored rows.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		instrumentID string
		interval     string
		openTime     int64
	}
	seen := make(map[key]struct{}, len(candles))
	for _, c := range candles {
		k := key{c.InstrumentID, c.Interval, c.OpenTime.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, c := range candles {
		exists, err := s.exists(ctx, c)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			instrument_id, timeframe, open_time, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.InstrumentID, c.Interval, c.OpenTime.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves candles with open_time within [start, end], ordered ASC.
func (s *CandleStore) GetByTimeRange(ctx context.Context, instrumentID, interval string, start, end time.Time) ([]*domain.Candle, error) {
	query := `
		SELECT instrument_id, timeframe, open_time, open, high, low, close, volume
		FROM candles FINAL
		WHERE instrument_id = ? AND timeframe = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID, interval, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// exists checks if a candle with the same key is stored.
func (s *CandleStore) exists(ctx context.Context, c *domain.Candle) (bool, error) {
	query := `
		SELECT count(*) FROM candles
		WHERE instrument_id = ? AND timeframe = ? AND open_time = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, c.InstrumentID, c.Interval, c.OpenTime.UTC()).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]*domain.Candle, error) {
	var candles []*domain.Candle

	for rows.Next() {
		var c domain.Candle
		err := rows.Scan(
			&c.InstrumentID, &c.Interval, &c.OpenTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
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
