package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
	"papertrade/internal/storage/migrations"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn, 8)
	require.NoError(t, err, "failed to create pool")

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "failed to apply migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

var testEpoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// seedAccountAndInstrument inserts account a1 and instrument btc.
func seedAccountAndInstrument(t *testing.T, store *Store) {
	t.Helper()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Accounts().Insert(ctx, &domain.Account{
			ID:              "a1",
			OwnerID:         "u1",
			Name:            "Demo",
			Currency:        "USD",
			Balance:         decimal.NewFromInt(10000),
			Equity:          decimal.NewFromInt(10000),
			MarginAvailable: decimal.NewFromInt(10000),
			MaxLeverage:     10,
			IsDemo:          true,
			IsActive:        true,
			CreatedAt:       testEpoch,
			UpdatedAt:       testEpoch,
		}); err != nil {
			return err
		}
		return tx.Instruments().Insert(ctx, &domain.Instrument{
			ID:             "btc",
			Symbol:         "BTC-USD",
			Name:           "Bitcoin",
			InstrumentType: "crypto",
			BaseCurrency:   "BTC",
			QuoteCurrency:  "USD",
			TickSize:       decimal.RequireFromString("0.01"),
			ContractSize:   decimal.NewFromInt(1),
			BaseSpread:     decimal.RequireFromString("0.001"),
			SlippageFactor: decimal.Zero,
			MinSize:        decimal.RequireFromString("0.0001"),
			IsActive:       true,
			IsTradeable:    true,
			CreatedAt:      testEpoch,
		})
	})
	require.NoError(t, err)
}

// ptr is a helper to create pointers to values.
func ptr[T any](v T) *T {
	return &v
}
