// Package account manages the lifecycle of simulated trading accounts.
package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/domain"
	"papertrade/internal/id"
	"papertrade/internal/ledger"
	"papertrade/internal/storage"
)

// Defaults for CreateRequest fields left zero.
const (
	DefaultCurrency    = "USD"
	DefaultMaxLeverage = 10
	MaxLeverageLimit   = 100
)

// SourceAccountCreation tags the funding entry of a new account.
const SourceAccountCreation = "account_creation"

// Options configures a Service.
type Options struct {
	Tx     storage.TxManager
	Ledger *ledger.Service
	Logger *zap.Logger
}

// Service creates, funds and deactivates accounts.
type Service struct {
	tx     storage.TxManager
	ledger *ledger.Service
	logger *zap.Logger
}

// NewService creates an account service.
func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{tx: opts.Tx, ledger: opts.Ledger, logger: opts.Logger}
}

// CreateRequest describes a new account.
type CreateRequest struct {
	OwnerID        string
	Name           string
	Currency       string           // defaults to DefaultCurrency
	InitialBalance *decimal.Decimal // nil means domain.DefaultInitialBalance
	MaxLeverage    int              // 0 means DefaultMaxLeverage
	IsDemo         bool
}

// Create inserts an account and funds it with a deposit entry in the same
// unit of work. A zero initial balance creates an empty account with no entry.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Account, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", storage.ErrInvalidInput)
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if req.MaxLeverage == 0 {
		req.MaxLeverage = DefaultMaxLeverage
	}
	if req.MaxLeverage < 1 || req.MaxLeverage > MaxLeverageLimit {
		return nil, fmt.Errorf("%w: max leverage must be within 1..%d", storage.ErrInvalidInput, MaxLeverageLimit)
	}
	initial := domain.DefaultInitialBalance
	if req.InitialBalance != nil {
		initial = *req.InitialBalance
	}
	if initial.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance must not be negative", storage.ErrInvalidInput)
	}

	now := s.ledger.Now()
	acct := &domain.Account{
		ID:              id.NewAt(now),
		OwnerID:         req.OwnerID,
		Name:            req.Name,
		Currency:        strings.ToUpper(req.Currency),
		MarginAvailable: initial,
		MaxLeverage:     req.MaxLeverage,
		IsDemo:          req.IsDemo,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var entry *domain.LedgerEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Accounts().Insert(ctx, acct); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		if initial.IsZero() {
			acct.RecomputeEquity()
			return tx.Accounts().Update(ctx, acct)
		}
		var err error
		entry, err = s.ledger.Post(ctx, tx, acct, ledger.AppendRequest{
			AccountID:   acct.ID,
			Type:        domain.EntryTypeDeposit,
			Amount:      initial,
			Description: "Initial deposit for account creation",
			Metadata:    domain.EntryMetadata{Source: SourceAccountCreation},
		})
		if err != nil {
			return err
		}
		return tx.Accounts().Update(ctx, acct)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.AfterCommit(ctx, acct, entry)
	s.logger.Info("account created",
		zap.String("account_id", acct.ID),
		zap.String("owner_id", acct.OwnerID),
		zap.String("balance", acct.Balance.String()),
	)
	return acct, nil
}

// Get returns an account.
func (s *Service) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	var acct *domain.Account
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		acct, err = ledger.LoadAccount(ctx, tx, accountID)
		return err
	})
	return acct, err
}

// List returns the active accounts of an owner. An empty ownerID lists all
// active accounts.
func (s *Service) List(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	var out []*domain.Account
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		all, err := tx.Accounts().List(ctx)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		for _, a := range all {
			if a.IsActive && (ownerID == "" || a.OwnerID == ownerID) {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

// Deposit credits cash and frees the same amount of collateral.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, source string) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive", storage.ErrInvalidInput)
	}
	if source == "" {
		source = "manual"
	}
	return s.move(ctx, accountID, ledger.AppendRequest{
		AccountID: accountID,
		Type:      domain.EntryTypeDeposit,
		Amount:    amount,
		Metadata:  domain.EntryMetadata{Source: source},
	})
}

// Withdraw debits cash. It fails with domain.ErrInsufficientFunds when free
// collateral does not cover amount.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, note string) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", storage.ErrInvalidInput)
	}
	return s.move(ctx, accountID, ledger.AppendRequest{
		AccountID: accountID,
		Type:      domain.EntryTypeWithdrawal,
		Amount:    amount.Neg(),
		Metadata:  domain.EntryMetadata{Note: note},
	})
}

// move posts a cash movement and shifts margin_available by the same amount.
func (s *Service) move(ctx context.Context, accountID string, req ledger.AppendRequest) (*domain.LedgerEntry, error) {
	var (
		acct  *domain.Account
		entry *domain.LedgerEntry
	)
	err := s.ledger.Guard().Do(ctx, accountID, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			acct, err = ledger.LoadAccount(ctx, tx, accountID)
			if err != nil {
				return err
			}
			if !acct.IsActive {
				return fmt.Errorf("%w: %s", domain.ErrAccountInactive, accountID)
			}
			if req.Amount.IsNegative() && acct.MarginAvailable.LessThan(req.Amount.Neg()) {
				return fmt.Errorf("%w: requested %s, available %s", domain.ErrInsufficientFunds,
					req.Amount.Neg().StringFixed(2), acct.MarginAvailable.StringFixed(2))
			}
			acct.MarginAvailable = acct.MarginAvailable.Add(req.Amount)
			entry, err = s.ledger.Post(ctx, tx, acct, req)
			if err != nil {
				return err
			}
			return tx.Accounts().Update(ctx, acct)
		})
	})
	if err != nil {
		return nil, err
	}
	s.ledger.AfterCommit(ctx, acct, entry)
	return entry, nil
}

// Deactivate marks an account inactive. Accounts with open positions are
// refused with domain.ErrOpenPositions.
func (s *Service) Deactivate(ctx context.Context, accountID string) (*domain.Account, error) {
	var acct *domain.Account
	err := s.ledger.Guard().Do(ctx, accountID, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			acct, err = ledger.LoadAccount(ctx, tx, accountID)
			if err != nil {
				return err
			}
			open := true
			positions, err := tx.Positions().ListByAccount(ctx, accountID, storage.PositionFilter{IsOpen: &open})
			if err != nil {
				return fmt.Errorf("list open positions: %w", err)
			}
			if len(positions) > 0 {
				return fmt.Errorf("%w: %d open position(s)", domain.ErrOpenPositions, len(positions))
			}
			acct.IsActive = false
			acct.UpdatedAt = s.ledger.Now()
			return tx.Accounts().Update(ctx, acct)
		})
	})
	if err != nil {
		return nil, err
	}
	s.ledger.AfterCommit(ctx, acct)
	s.logger.Info("account deactivated", zap.String("account_id", accountID))
	return acct, nil
}
