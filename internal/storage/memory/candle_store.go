package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by (instrument_id, interval, open_time)
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

func candleKey(instrumentID, interval string, openTime time.Time) string {
	return fmt.Sprintf("%s|%s|%d", instrumentID, interval, openTime.UnixMilli())
}

// InsertBulk adds multiple candles. Fails entire batch on duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(candles))
	for _, c := range candles {
		if c == nil || c.InstrumentID == "" || c.Interval == "" {
			return storage.ErrInvalidInput
		}
		key := candleKey(c.InstrumentID, c.Interval, c.OpenTime)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, c := range candles {
		candleCopy := *c
		s.data[candleKey(c.InstrumentID, c.Interval, c.OpenTime)] = &candleCopy
	}
	return nil
}

// GetByTimeRange retrieves candles with open_time within [start, end], ordered ASC.
func (s *CandleStore) GetByTimeRange(_ context.Context, instrumentID, interval string, start, end time.Time) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.InstrumentID != instrumentID || c.Interval != interval {
			continue
		}
		if c.OpenTime.Before(start) || c.OpenTime.After(end) {
			continue
		}
		candleCopy := *c
		result = append(result, &candleCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})
	return result, nil
}

// LatestPrice returns the close of the newest candle.
func (s *CandleStore) LatestPrice(_ context.Context, instrumentID, interval string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Candle
	for _, c := range s.data {
		if c.InstrumentID != instrumentID || c.Interval != interval {
			continue
		}
		if latest == nil || c.OpenTime.After(latest.OpenTime) {
			latest = c
		}
	}
	if latest == nil {
		return decimal.Zero, storage.ErrNotFound
	}
	return latest.Close, nil
}

// SetPrice records price as a flat candle at openTime. Test and CLI helper.
func (s *CandleStore) SetPrice(instrumentID, interval string, price decimal.Decimal, openTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[candleKey(instrumentID, interval, openTime)] = &domain.Candle{
		InstrumentID: instrumentID,
		Interval:     interval,
		OpenTime:     openTime,
		Open:         price,
		High:         price,
		Low:          price,
		Close:        price,
		Volume:       decimal.Zero,
	}
}

var _ storage.CandleStore = (*CandleStore)(nil)
