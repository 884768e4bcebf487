package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNoMarketData           = errors.New("no market data")
	ErrInsufficientMargin     = errors.New("insufficient margin")
	ErrAccountNotFound        = errors.New("account not found")
	ErrPositionNotFound       = errors.New("position not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInstrumentNotFound     = errors.New("instrument not found")
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
	ErrOrderNotPending        = errors.New("order is not pending")
	ErrPositionClosed         = errors.New("position is closed")
	ErrInvalidCloseSize       = errors.New("invalid close size")
	ErrAccountInactive        = errors.New("account is inactive")
	ErrInstrumentNotTradeable = errors.New("instrument is not tradeable")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrOpenPositions          = errors.New("account has open positions")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidMetadata        = errors.New("invalid ledger metadata")
	ErrInvalidEntry           = errors.New("invalid ledger entry")
)

// RejectionKind identifies why an order was rejected.
type RejectionKind string

const (
	RejectionNoMarketData       RejectionKind = "no_market_data"
	RejectionInsufficientMargin RejectionKind = "insufficient_margin"
)

// RejectionError is returned when an order is rejected by admission control.
// The rejected order itself is committed; no balances move.
type RejectionError struct {
	Kind      RejectionKind
	Detail    string
	Required  decimal.Decimal // margin + commission, InsufficientMargin only
	Available decimal.Decimal // margin_available, InsufficientMargin only
}

func (e *RejectionError) Error() string {
	if e.Kind == RejectionInsufficientMargin {
		return fmt.Sprintf("order rejected: %s: required %s, available %s",
			e.Kind, e.Required.StringFixed(2), e.Available.StringFixed(2))
	}
	return fmt.Sprintf("order rejected: %s: %s", e.Kind, e.Detail)
}

// Is matches the sentinel corresponding to Kind.
func (e *RejectionError) Is(target error) bool {
	switch e.Kind {
	case RejectionNoMarketData:
		return target == ErrNoMarketData
	case RejectionInsufficientMargin:
		return target == ErrInsufficientMargin
	}
	return false
}
