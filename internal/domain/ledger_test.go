package domain

import (
	"errors"
	"testing"
)

func TestEntryMetadata_Validate(t *testing.T) {
	size, price := d("1"), d("50000")

	tests := []struct {
		name      string
		entryType EntryType
		meta      EntryMetadata
		wantErr   bool
	}{
		{"commission complete", EntryTypeCommission, EntryMetadata{SchemaVersion: 1, OrderType: OrderTypeMarket, Side: "buy", Size: &size, FillPrice: &price}, false},
		{"commission missing fill", EntryTypeCommission, EntryMetadata{SchemaVersion: 1, OrderType: OrderTypeMarket, Side: "buy", Size: &size}, true},
		{"trade_pnl complete", EntryTypeTradePnL, EntryMetadata{SchemaVersion: 1, EntryPrice: &price, ExitPrice: &price, Size: &size}, false},
		{"trade_pnl missing exit", EntryTypeTradePnL, EntryMetadata{SchemaVersion: 1, EntryPrice: &price, Size: &size}, true},
		{"deposit with source", EntryTypeDeposit, EntryMetadata{SchemaVersion: 1, Source: "account_creation"}, false},
		{"deposit without source", EntryTypeDeposit, EntryMetadata{SchemaVersion: 1}, true},
		{"fee empty", EntryTypeFee, EntryMetadata{SchemaVersion: 1}, false},
		{"unknown version", EntryTypeFee, EntryMetadata{SchemaVersion: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate(tt.entryType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMetadata) {
				t.Errorf("err = %v, want ErrInvalidMetadata", err)
			}
		})
	}
}

func TestReconciliationReport_Err(t *testing.T) {
	ok := &ReconciliationReport{AccountID: "a1", IsReconciled: true}
	if err := ok.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}

	bad := &ReconciliationReport{AccountID: "a1", Discrepancy: d("5")}
	if err := bad.Err(); !errors.Is(err, ErrReconciliationMismatch) {
		t.Errorf("Err() = %v, want ErrReconciliationMismatch", err)
	}
}

func TestRejectionError_Is(t *testing.T) {
	var err error = &RejectionError{Kind: RejectionInsufficientMargin, Required: d("10020.01"), Available: d("10000")}

	if !errors.Is(err, ErrInsufficientMargin) {
		t.Error("expected errors.Is(err, ErrInsufficientMargin)")
	}
	if errors.Is(err, ErrNoMarketData) {
		t.Error("unexpected match on ErrNoMarketData")
	}

	var rej *RejectionError
	if !errors.As(err, &rej) || !rej.Required.Equal(d("10020.01")) {
		t.Errorf("errors.As failed or wrong Required: %+v", rej)
	}
}

func TestAccount_MarginTransitions(t *testing.T) {
	a := &Account{Balance: d("10000"), MarginAvailable: d("10000")}
	a.RecomputeEquity()

	if !a.CanAfford(d("2500"), d("0.5")) {
		t.Fatal("expected account to afford order")
	}
	if a.CanAfford(d("10000"), d("0.01")) {
		t.Fatal("margin plus commission above available must not be affordable")
	}

	a.PledgeMargin(d("2500"), d("0.5"))
	a.Balance = a.Balance.Sub(d("0.5"))
	a.RecomputeEquity()
	if !a.MarginAvailable.Equal(d("7499.5")) || !a.MarginUsed.Equal(d("2500")) {
		t.Errorf("after pledge: available=%s used=%s", a.MarginAvailable, a.MarginUsed)
	}
	if !a.Equity.Equal(d("12499.5")) {
		t.Errorf("Equity = %s, want 12499.5", a.Equity)
	}

	a.ReleaseMargin(d("2500"))
	if !a.MarginUsed.IsZero() || !a.MarginAvailable.Equal(d("9999.5")) {
		t.Errorf("after release: available=%s used=%s", a.MarginAvailable, a.MarginUsed)
	}
}
