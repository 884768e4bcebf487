package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"papertrade/internal/domain"
)

// SQLiteJournal is a Journal backed by a local SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the journal at path. Use ":memory:" for tests.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// RecordEntry mirrors a committed ledger entry. Re-recording the same entry is a no-op.
func (j *SQLiteJournal) RecordEntry(ctx context.Context, e *domain.LedgerEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO ledger_entries
		(id, account_id, entry_type, amount, balance_after, currency, order_id, position_id, description, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.AccountID, string(e.Type), e.Amount.String(), e.BalanceAfter.String(), e.Currency,
		nullString(e.OrderID), nullString(e.PositionID), e.Description, string(meta), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record entry %s: %w", e.ID, err)
	}
	return nil
}

// RecordSnapshot stores an account snapshot keyed by (account_id, version).
func (j *SQLiteJournal) RecordSnapshot(ctx context.Context, s AccountSnapshot) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO account_snapshots
		(account_id, time, balance, equity, margin_used, margin_available, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.AccountID, s.Time.UTC(), s.Balance.String(), s.Equity.String(),
		s.MarginUsed.String(), s.MarginAvailable.String(), s.Version,
	)
	if err != nil {
		return fmt.Errorf("record snapshot %s@%d: %w", s.AccountID, s.Version, err)
	}
	return nil
}

// ListEntries returns journaled entries of an account, oldest first.
func (j *SQLiteJournal) ListEntries(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, account_id, entry_type, amount, balance_after, currency,
		       COALESCE(order_id, ''), COALESCE(position_id, ''), description, metadata, created_at
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var result []*domain.LedgerEntry
	for rows.Next() {
		var (
			e                    domain.LedgerEntry
			entryType            string
			amount, balanceAfter string
			meta                 string
			createdAt            time.Time
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &entryType, &amount, &balanceAfter, &e.Currency,
			&e.OrderID, &e.PositionID, &e.Description, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Type = domain.EntryType(entryType)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if e.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
			return nil, fmt.Errorf("parse balance_after: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		e.CreatedAt = createdAt
		result = append(result, &e)
	}
	return result, rows.Err()
}

// LatestSnapshot returns the highest-version snapshot of an account, or nil if none.
func (j *SQLiteJournal) LatestSnapshot(ctx context.Context, accountID string) (*AccountSnapshot, error) {
	var (
		s                                AccountSnapshot
		balance, equity, used, available string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT account_id, time, balance, equity, margin_used, margin_available, version
		FROM account_snapshots
		WHERE account_id = ?
		ORDER BY version DESC
		LIMIT 1`, accountID,
	).Scan(&s.AccountID, &s.Time, &balance, &equity, &used, &available, &s.Version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	s.Balance = decimal.RequireFromString(balance)
	s.Equity = decimal.RequireFromString(equity)
	s.MarginUsed = decimal.RequireFromString(used)
	s.MarginAvailable = decimal.RequireFromString(available)
	return &s, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Journal = (*SQLiteJournal)(nil)
