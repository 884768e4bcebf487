package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is immutable reference data for a tradable symbol.
// Corresponds to instruments table in PostgreSQL.
type Instrument struct {
	ID             string
	Symbol         string // unique, e.g. "BTC-USD"
	Name           string
	InstrumentType string // crypto | forex | index ...
	BaseCurrency   string
	QuoteCurrency  string
	TickSize       decimal.Decimal
	ContractSize   decimal.Decimal
	BaseSpread     decimal.Decimal // fraction of price, e.g. 0.001
	SlippageFactor decimal.Decimal // base slippage fraction
	MinSize        decimal.Decimal
	MaxSize        *decimal.Decimal // nil means unbounded
	IsActive       bool
	IsTradeable    bool
	CreatedAt      time.Time
}

// SizeAllowed reports whether size lies within [MinSize, MaxSize].
func (i *Instrument) SizeAllowed(size decimal.Decimal) bool {
	if size.LessThan(i.MinSize) {
		return false
	}
	if i.MaxSize != nil && size.GreaterThan(*i.MaxSize) {
		return false
	}
	return true
}
