package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"papertrade/internal/observability"
	"papertrade/internal/storage"
)

// Store is the PostgreSQL unit-of-work manager. Every WithinTx call runs in
// one pgx transaction; concurrent writers are detected by the version
// compare-and-swap of each Update and surface as storage.ErrConflict.
type Store struct {
	pool *Pool
}

// NewStore creates a Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.TxManager = (*Store)(nil)

// WithinTx runs fn inside a transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordDBQuery("postgres", "tx", time.Since(start).Seconds(), err)
	}()

	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = pgTx.Rollback(context.Background())
			err = fmt.Errorf("unit of work panicked: %v", p)
		}
	}()

	if err := fn(ctx, &tx{q: pgTx}); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		if isSerializationError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// tx binds the stores to one pgx transaction.
type tx struct {
	q querier
}

func (t *tx) Accounts() storage.AccountStore       { return &AccountStore{q: t.q} }
func (t *tx) Instruments() storage.InstrumentStore { return &InstrumentStore{q: t.q} }
func (t *tx) Orders() storage.OrderStore           { return &OrderStore{q: t.q} }
func (t *tx) Positions() storage.PositionStore     { return &PositionStore{q: t.q} }
func (t *tx) Ledger() storage.LedgerStore          { return &LedgerStore{q: t.q} }

// casResult maps a zero-row compare-and-swap to ErrNotFound or ErrConflict.
func casResult(ctx context.Context, q querier, table, id string, rows int64) error {
	if rows > 0 {
		return nil
	}
	var exists bool
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", table), id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check %s existence: %w", table, err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}
