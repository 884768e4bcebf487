// Package ledger is the single write path for account balances.
//
// Every balance change is an append-only entry stamped with the resulting
// balance. Post applies an entry inside a caller's unit of work; Append runs
// one in its own. Committed entries are mirrored to the journal, broadcast
// and counted only after commit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/accountlock"
	"papertrade/internal/domain"
	"papertrade/internal/id"
	"papertrade/internal/journal"
	"papertrade/internal/notify"
	"papertrade/internal/observability"
	"papertrade/internal/storage"
)

// DefaultListLimit applies when a list request leaves Limit at zero.
const DefaultListLimit = 100

// Options configures a Service.
type Options struct {
	Tx          storage.TxManager
	Guard       *accountlock.Guard
	Journal     journal.Journal
	Broadcaster notify.Broadcaster
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Service implements the ledger operations.
type Service struct {
	tx          storage.TxManager
	guard       *accountlock.Guard
	journal     journal.Journal
	broadcaster notify.Broadcaster
	clock       func() time.Time
	logger      *zap.Logger
}

// NewService creates a ledger service.
func NewService(opts Options) *Service {
	if opts.Guard == nil {
		opts.Guard = accountlock.New(accountlock.Options{Logger: opts.Logger})
	}
	if opts.Journal == nil {
		opts.Journal = journal.Nop{}
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = notify.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		tx:          opts.Tx,
		guard:       opts.Guard,
		journal:     opts.Journal,
		broadcaster: opts.Broadcaster,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Guard returns the per-account lock shared with other services.
func (s *Service) Guard() *accountlock.Guard {
	return s.guard
}

// Now returns the service clock reading in UTC.
func (s *Service) Now() time.Time {
	return s.clock().UTC()
}

// AppendRequest describes one balance change.
type AppendRequest struct {
	AccountID   string
	Type        domain.EntryType
	Amount      decimal.Decimal // signed: credit > 0, debit < 0
	Currency    string          // defaults to the account currency
	OrderID     string
	PositionID  string
	Description string // defaults to the humanized entry type
	Metadata    domain.EntryMetadata
}

// Post applies req to acct and inserts the entry through tx.
// acct.Balance becomes balance + amount and equity is recomputed; the caller
// must persist acct in the same unit of work.
func (s *Service) Post(ctx context.Context, tx storage.Tx, acct *domain.Account, req AppendRequest) (*domain.LedgerEntry, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown entry type %q", domain.ErrInvalidEntry, req.Type)
	}
	if req.Metadata.SchemaVersion == 0 {
		req.Metadata.SchemaVersion = domain.MetadataSchemaVersion
	}
	if err := req.Metadata.Validate(req.Type); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = acct.Currency
	}
	description := req.Description
	if description == "" {
		description = humanize(req.Type)
	}

	now := s.Now()
	acct.Balance = acct.Balance.Add(req.Amount)
	acct.RecomputeEquity()
	acct.UpdatedAt = now

	entry := &domain.LedgerEntry{
		ID:           id.NewAt(now),
		AccountID:    acct.ID,
		Type:         req.Type,
		Amount:       req.Amount,
		BalanceAfter: acct.Balance,
		Currency:     currency,
		OrderID:      req.OrderID,
		PositionID:   req.PositionID,
		Description:  description,
		Metadata:     req.Metadata,
		CreatedAt:    now,
	}
	if err := tx.Ledger().Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	return entry, nil
}

// Append posts req in its own unit of work under the account lock.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*domain.LedgerEntry, error) {
	var (
		entry *domain.LedgerEntry
		acct  *domain.Account
	)
	err := s.guard.Do(ctx, req.AccountID, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			acct, err = LoadAccount(ctx, tx, req.AccountID)
			if err != nil {
				return err
			}
			entry, err = s.Post(ctx, tx, acct, req)
			if err != nil {
				return err
			}
			return tx.Accounts().Update(ctx, acct)
		})
	})
	if err != nil {
		return nil, err
	}

	s.AfterCommit(ctx, acct, entry)
	return entry, nil
}

// List returns entries of an account newest first.
func (s *Service) List(ctx context.Context, accountID string, f storage.LedgerFilter) ([]*domain.LedgerEntry, error) {
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	var entries []*domain.LedgerEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := LoadAccount(ctx, tx, accountID); err != nil {
			return err
		}
		var err error
		entries, err = tx.Ledger().ListByAccount(ctx, accountID, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Reconcile compares the account balance with the balance_after of its
// newest entry. A difference above one cent is a discrepancy. An account
// without entries reconciles only when its balance is zero.
func (s *Service) Reconcile(ctx context.Context, accountID string) (*domain.ReconciliationReport, error) {
	var report *domain.ReconciliationReport
	err := s.guard.Do(ctx, accountID, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			acct, err := LoadAccount(ctx, tx, accountID)
			if err != nil {
				return err
			}
			totals, err := tx.Ledger().Totals(ctx, accountID)
			if err != nil {
				return fmt.Errorf("ledger totals: %w", err)
			}

			report = &domain.ReconciliationReport{
				AccountID:      accountID,
				CurrentBalance: acct.Balance,
				LedgerBalance:  decimal.Zero,
				LedgerSum:      totals.Sum,
				EntriesCount:   totals.Count,
			}

			latest, err := tx.Ledger().Latest(ctx, accountID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				report.Discrepancy = acct.Balance
				report.IsReconciled = acct.Balance.IsZero()
				return nil
			case err != nil:
				return fmt.Errorf("latest ledger entry: %w", err)
			}

			createdAt := latest.CreatedAt
			report.LedgerBalance = latest.BalanceAfter
			report.LastEntryAt = &createdAt
			report.Discrepancy = acct.Balance.Sub(latest.BalanceAfter)
			report.IsReconciled = report.Discrepancy.Abs().LessThanOrEqual(domain.ReconciliationTolerance)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	observability.RecordReconciliation(report.IsReconciled)
	if !report.IsReconciled {
		s.logger.Warn("ledger reconciliation mismatch",
			zap.String("account_id", accountID),
			zap.String("balance", report.CurrentBalance.String()),
			zap.String("ledger_balance", report.LedgerBalance.String()),
			zap.String("discrepancy", report.Discrepancy.String()),
			zap.Int64("entries", report.EntriesCount),
		)
	}
	return report, nil
}

// AfterCommit mirrors committed entries and the resulting account state.
// Failures are logged; the commit stands.
func (s *Service) AfterCommit(ctx context.Context, acct *domain.Account, entries ...*domain.LedgerEntry) {
	for _, e := range entries {
		if e == nil {
			continue
		}
		observability.RecordLedgerEntry(string(e.Type))
		if err := s.journal.RecordEntry(ctx, e); err != nil {
			s.logger.Error("journal ledger entry", zap.String("entry_id", e.ID), zap.Error(err))
		}
		s.Publish(notify.Event{Type: notify.EventLedgerEntry, AccountID: e.AccountID, Payload: e, At: e.CreatedAt})
	}
	if acct == nil {
		return
	}
	if err := s.journal.RecordSnapshot(ctx, journal.SnapshotOf(acct, s.Now())); err != nil {
		s.logger.Error("journal account snapshot", zap.String("account_id", acct.ID), zap.Error(err))
	}
	s.Publish(notify.Event{Type: notify.EventAccountUpdate, AccountID: acct.ID, Payload: acct, At: s.Now()})
}

// Publish sends e to the broadcaster, logging failures.
func (s *Service) Publish(e notify.Event) {
	if err := s.broadcaster.Publish(e); err != nil {
		s.logger.Error("broadcast event", zap.String("type", string(e.Type)), zap.Error(err))
	}
}

// LoadAccount reads an account, mapping storage.ErrNotFound to domain.ErrAccountNotFound.
func LoadAccount(ctx context.Context, tx storage.Tx, accountID string) (*domain.Account, error) {
	acct, err := tx.Accounts().GetByID(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// humanize turns "trade_pnl" into "Trade Pnl".
func humanize(t domain.EntryType) string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
