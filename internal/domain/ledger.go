package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryTypeDeposit    EntryType = "deposit"
	EntryTypeWithdrawal EntryType = "withdrawal"
	EntryTypeTradePnL   EntryType = "trade_pnl"
	EntryTypeCommission EntryType = "commission"
	EntryTypeFee        EntryType = "fee"
	EntryTypeRefund     EntryType = "refund"
	EntryTypeAdjustment EntryType = "adjustment"
	EntryTypeFunding    EntryType = "funding"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeDeposit, EntryTypeWithdrawal, EntryTypeTradePnL, EntryTypeCommission,
		EntryTypeFee, EntryTypeRefund, EntryTypeAdjustment, EntryTypeFunding:
		return true
	}
	return false
}

// LedgerEntry is an immutable balance-affecting event.
// Corresponds to ledger_entries table in PostgreSQL.
type LedgerEntry struct {
	ID           string
	AccountID    string
	Type         EntryType
	Amount       decimal.Decimal // signed
	BalanceAfter decimal.Decimal // account balance right after this entry
	Currency     string
	OrderID      string // optional
	PositionID   string // optional
	Description  string
	Metadata     EntryMetadata
	CreatedAt    time.Time
}

// MetadataSchemaVersion is the current EntryMetadata layout.
const MetadataSchemaVersion = 1

// EntryMetadata is the typed payload stored with a ledger entry.
//
// Required fields per entry type (schema v1):
//
//	commission: OrderType, Side, Size, FillPrice
//	trade_pnl:  EntryPrice, ExitPrice, Size
//	deposit:    Source
//
// Other fields are optional.
type EntryMetadata struct {
	SchemaVersion int              `json:"schema_version"`
	Source        string           `json:"source,omitempty"` // e.g. account_creation, operator
	OrderType     OrderType        `json:"order_type,omitempty"`
	Side          string           `json:"side,omitempty"` // order side or position side
	Size          *decimal.Decimal `json:"size,omitempty"`
	FillPrice     *decimal.Decimal `json:"fill_price,omitempty"`
	EntryPrice    *decimal.Decimal `json:"entry_price,omitempty"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty"`
	Reason        string           `json:"reason,omitempty"` // close trigger: manual, stop_loss, take_profit, order
	Note          string           `json:"note,omitempty"`
}

// Validate checks that the fields required by entryType are present.
func (m EntryMetadata) Validate(entryType EntryType) error {
	if m.SchemaVersion != MetadataSchemaVersion {
		return fmt.Errorf("%w: metadata schema version %d", ErrInvalidMetadata, m.SchemaVersion)
	}
	switch entryType {
	case EntryTypeCommission:
		if m.OrderType == "" || m.Side == "" || m.Size == nil || m.FillPrice == nil {
			return fmt.Errorf("%w: commission requires order_type, side, size, fill_price", ErrInvalidMetadata)
		}
	case EntryTypeTradePnL:
		if m.EntryPrice == nil || m.ExitPrice == nil || m.Size == nil {
			return fmt.Errorf("%w: trade_pnl requires entry_price, exit_price, size", ErrInvalidMetadata)
		}
	case EntryTypeDeposit:
		if m.Source == "" {
			return fmt.Errorf("%w: deposit requires source", ErrInvalidMetadata)
		}
	}
	return nil
}

// ReconciliationTolerance is the largest balance difference treated as reconciled.
var ReconciliationTolerance = decimal.New(1, -2)

// ReconciliationReport compares an account balance with its ledger.
type ReconciliationReport struct {
	AccountID      string
	CurrentBalance decimal.Decimal
	LedgerBalance  decimal.Decimal // balance_after of the newest entry, zero if none
	LedgerSum      decimal.Decimal // sum of all signed amounts
	EntriesCount   int64
	Discrepancy    decimal.Decimal // CurrentBalance - LedgerBalance
	IsReconciled   bool
	LastEntryAt    *time.Time
}

// Err returns ErrReconciliationMismatch when the report is not reconciled.
func (r *ReconciliationReport) Err() error {
	if r.IsReconciled {
		return nil
	}
	return fmt.Errorf("%w: account %s off by %s", ErrReconciliationMismatch, r.AccountID, r.Discrepancy.StringFixed(8))
}
