package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an OHLCV bar for one instrument and sampling interval.
// Corresponds to candles table in PostgreSQL and ClickHouse.
// The core only reads the newest Close as the reference price.
type Candle struct {
	InstrumentID string
	Interval     string    // sampling interval, e.g. "1m"
	OpenTime     time.Time // bar start
	Open         decimal.Decimal
	High         decimal.Decimal
	Low          decimal.Decimal
	Close        decimal.Decimal // reference price
	Volume       decimal.Decimal
}

// Supported candle intervals
const (
	Interval1Min  = "1m"
	Interval5Min  = "5m"
	Interval1Hour = "1h"
	Interval1Day  = "1d"
)
