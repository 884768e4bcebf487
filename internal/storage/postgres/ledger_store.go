package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Rows are never updated; the table trigger rejects UPDATE and DELETE.
type LedgerStore struct {
	q querier
}

// NewLedgerStore creates a LedgerStore outside a unit of work.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{q: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

const ledgerColumns = `
	id, account_id, entry_type, amount, balance_after, currency,
	order_id, position_id, description, metadata, created_at`

// Insert appends an entry. Returns ErrDuplicateKey if id exists.
func (s *LedgerStore) Insert(ctx context.Context, e *domain.LedgerEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal ledger metadata: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (` + ledgerColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.q.Exec(ctx, query,
		e.ID,
		e.AccountID,
		string(e.Type),
		e.Amount,
		e.BalanceAfter,
		e.Currency,
		e.OrderID,
		e.PositionID,
		e.Description,
		meta,
		e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListByAccount retrieves entries newest first, ties broken by id DESC.
func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, f storage.LedgerFilter) ([]*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE account_id = $1`
	args := []any{accountID}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND entry_type = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	page, args := limitOffset(len(args)+1, f.Limit, f.Offset, args)
	query += page

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

// Latest retrieves the newest entry of an account. Returns ErrNotFound if none.
func (s *LedgerStore) Latest(ctx context.Context, accountID string) (*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	e, err := scanLedgerEntry(s.q.QueryRow(ctx, query, accountID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest ledger entry: %w", err)
	}
	return e, nil
}

// Totals returns count and signed sum of all entries of an account.
func (s *LedgerStore) Totals(ctx context.Context, accountID string) (storage.LedgerTotals, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id = $1`

	var t storage.LedgerTotals
	if err := s.q.QueryRow(ctx, query, accountID).Scan(&t.Count, &t.Sum); err != nil {
		return storage.LedgerTotals{}, fmt.Errorf("ledger totals: %w", err)
	}
	return t, nil
}

// scanLedgerEntry scans a single row into a LedgerEntry.
func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var entryType string
	var meta []byte
	err := row.Scan(
		&e.ID,
		&e.AccountID,
		&entryType,
		&e.Amount,
		&e.BalanceAfter,
		&e.Currency,
		&e.OrderID,
		&e.PositionID,
		&e.Description,
		&meta,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Type = domain.EntryType(entryType)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal ledger metadata: %w", err)
		}
	}
	return &e, nil
}
