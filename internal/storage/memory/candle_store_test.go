package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

func TestCandleStore_LatestPrice(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	candles := []*domain.Candle{
		{InstrumentID: "i1", Interval: "1m", OpenTime: t0, Close: decimal.NewFromInt(100)},
		{InstrumentID: "i1", Interval: "1m", OpenTime: t0.Add(time.Minute), Close: decimal.NewFromInt(101)},
		{InstrumentID: "i1", Interval: "1h", OpenTime: t0.Add(time.Hour), Close: decimal.NewFromInt(150)},
	}
	if err := store.InsertBulk(ctx, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	price, err := store.LatestPrice(ctx, "i1", "1m")
	if err != nil {
		t.Fatalf("LatestPrice failed: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(101)) {
		t.Errorf("Expected 101, got %s", price)
	}

	if _, err := store.LatestPrice(ctx, "i2", "1m"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	rng, _ := store.GetByTimeRange(ctx, "i1", "1m", t0, t0.Add(time.Minute))
	if len(rng) != 2 || !rng[0].OpenTime.Equal(t0) {
		t.Errorf("Expected 2 candles in ascending order, got %d", len(rng))
	}
}

func TestCandleStore_DuplicateKey(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()
	c := &domain.Candle{InstrumentID: "i1", Interval: "1m", OpenTime: time.Unix(0, 0)}

	if err := store.InsertBulk(ctx, []*domain.Candle{c, c}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.Candle{c}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.Candle{c}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestCandleStore_SetPrice(t *testing.T) {
	store := NewCandleStore()
	store.SetPrice("i1", "1m", decimal.NewFromInt(50000), time.Unix(60, 0))
	store.SetPrice("i1", "1m", decimal.NewFromInt(50500), time.Unix(120, 0))

	price, err := store.LatestPrice(context.Background(), "i1", "1m")
	if err != nil || !price.Equal(decimal.NewFromInt(50500)) {
		t.Errorf("LatestPrice = %s, %v; want 50500", price, err)
	}
}
