package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	q querier
}

// NewAccountStore creates an AccountStore outside a unit of work.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{q: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

const accountColumns = `
	id, owner_id, name, currency, balance, equity, margin_used, margin_available,
	max_leverage, is_demo, is_active, version, created_at, updated_at`

// Insert adds a new account with version 1. Returns ErrDuplicateKey if id exists.
func (s *AccountStore) Insert(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
	`

	_, err := s.q.Exec(ctx, query,
		a.ID,
		a.OwnerID,
		a.Name,
		a.Currency,
		a.Balance,
		a.Equity,
		a.MarginUsed,
		a.MarginAvailable,
		a.MaxLeverage,
		a.IsDemo,
		a.IsActive,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account: %w", err)
	}
	a.Version = 1
	return nil
}

// GetByID retrieves an account by its ID. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	a, err := scanAccount(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account by id: %w", err)
	}
	return a, nil
}

// Update writes the mutable fields if the stored version equals a.Version.
func (s *AccountStore) Update(ctx context.Context, a *domain.Account) error {
	query := `
		UPDATE accounts SET
			name = $3, balance = $4, equity = $5, margin_used = $6, margin_available = $7,
			max_leverage = $8, is_active = $9, updated_at = $10, version = version + 1
		WHERE id = $1 AND version = $2
	`

	tag, err := s.q.Exec(ctx, query,
		a.ID,
		a.Version,
		a.Name,
		a.Balance,
		a.Equity,
		a.MarginUsed,
		a.MarginAvailable,
		a.MaxLeverage,
		a.IsActive,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if err := casResult(ctx, s.q, "accounts", a.ID, tag.RowsAffected()); err != nil {
		return err
	}
	a.Version++
	return nil
}

// List retrieves all accounts ordered by created_at ASC.
func (s *AccountStore) List(ctx context.Context) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at ASC, id ASC`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	return accounts, nil
}

// scanAccount scans a single row into an Account.
func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.Name,
		&a.Currency,
		&a.Balance,
		&a.Equity,
		&a.MarginUsed,
		&a.MarginAvailable,
		&a.MaxLeverage,
		&a.IsDemo,
		&a.IsActive,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
