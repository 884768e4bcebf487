package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
)

// AccountStore provides access to accounts storage.
type AccountStore interface {
	// Insert adds a new account with Version 1. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, a *domain.Account) error

	// GetByID retrieves an account by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// Update overwrites the mutable fields if the stored version equals a.Version,
	// then increments a.Version. Returns ErrConflict on version mismatch.
	Update(ctx context.Context, a *domain.Account) error

	// List retrieves all accounts ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.Account, error)
}

// InstrumentStore provides access to instruments storage.
type InstrumentStore interface {
	// Insert adds a new instrument. Returns ErrDuplicateKey if id or symbol exists.
	Insert(ctx context.Context, i *domain.Instrument) error

	// GetByID retrieves an instrument by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Instrument, error)

	// GetBySymbol retrieves an instrument by symbol. Returns ErrNotFound if not exists.
	GetBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error)

	// List retrieves all instruments ordered by symbol.
	List(ctx context.Context) ([]*domain.Instrument, error)
}

// OrderFilter narrows OrderStore.ListByAccount. Zero values match everything.
type OrderFilter struct {
	Status domain.OrderStatus
	Limit  int // <= 0 means no limit
	Offset int
}

// OrderStore provides access to orders storage.
type OrderStore interface {
	// Insert adds a new order with Version 1. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, o *domain.Order) error

	// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// Update compares-and-swaps on o.Version. Returns ErrConflict on mismatch.
	Update(ctx context.Context, o *domain.Order) error

	// ListByAccount retrieves orders of an account, newest first.
	ListByAccount(ctx context.Context, accountID string, f OrderFilter) ([]*domain.Order, error)
}

// PositionFilter narrows PositionStore.ListByAccount.
type PositionFilter struct {
	IsOpen *bool // nil matches open and closed
	Limit  int   // <= 0 means no limit
	Offset int
}

// PositionStore provides access to positions storage.
type PositionStore interface {
	// Insert adds a new position with Version 1. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Position, error)

	// Update compares-and-swaps on p.Version. Returns ErrConflict on mismatch.
	Update(ctx context.Context, p *domain.Position) error

	// FindOpen retrieves the oldest open position for (account, instrument, side).
	// Returns ErrNotFound if none is open.
	FindOpen(ctx context.Context, accountID, instrumentID string, side domain.PositionSide) (*domain.Position, error)

	// ListByAccount retrieves positions of an account, newest first.
	ListByAccount(ctx context.Context, accountID string, f PositionFilter) ([]*domain.Position, error)

	// ListOpen retrieves all open positions across accounts, ordered by opened_at ASC.
	ListOpen(ctx context.Context) ([]*domain.Position, error)
}

// LedgerFilter narrows LedgerStore.ListByAccount. Zero values match everything.
type LedgerFilter struct {
	Type   domain.EntryType
	Limit  int // <= 0 means no limit
	Offset int
}

// LedgerTotals summarizes all entries of one account.
type LedgerTotals struct {
	Count int64
	Sum   decimal.Decimal
}

// LedgerStore provides access to ledger_entries storage.
// Append-only: there are no update or delete operations.
type LedgerStore interface {
	// Insert appends an entry. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, e *domain.LedgerEntry) error

	// ListByAccount retrieves entries newest first, ties broken by id DESC.
	ListByAccount(ctx context.Context, accountID string, f LedgerFilter) ([]*domain.LedgerEntry, error)

	// Latest retrieves the newest entry of an account. Returns ErrNotFound if none.
	Latest(ctx context.Context, accountID string) (*domain.LedgerEntry, error)

	// Totals returns count and signed sum of all entries of an account.
	Totals(ctx context.Context, accountID string) (LedgerTotals, error)
}

// Tx is one unit of work. Stores obtained from it share its atomicity.
type Tx interface {
	Accounts() AccountStore
	Instruments() InstrumentStore
	Orders() OrderStore
	Positions() PositionStore
	Ledger() LedgerStore
}

// TxManager runs units of work.
type TxManager interface {
	// WithinTx runs fn in a new transaction. A nil return commits every
	// mutation made through tx; an error (or panic) rolls all of them back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// PriceReference supplies the latest trade price of an instrument.
type PriceReference interface {
	// LatestPrice returns the close of the newest candle for (instrument, interval).
	// Returns ErrNotFound if no candle exists.
	LatestPrice(ctx context.Context, instrumentID, interval string) (decimal.Decimal, error)
}

// TxPriceReference is implemented by price references that live in the
// transactional database. Reads made while a unit of work is open must go
// through InTx so they share its connection instead of taking another one
// from the pool.
type TxPriceReference interface {
	PriceReference

	// InTx returns a reference reading through tx. Units of work of
	// another backend get the receiver back unchanged.
	InTx(tx Tx) PriceReference
}

// CandleStore provides access to candles storage.
type CandleStore interface {
	PriceReference

	// InsertBulk adds multiple candles. Fails entire batch on duplicate
	// (instrument_id, interval, open_time).
	InsertBulk(ctx context.Context, candles []*domain.Candle) error

	// GetByTimeRange retrieves candles with open_time within [start, end], ordered ASC.
	GetByTimeRange(ctx context.Context, instrumentID, interval string, start, end time.Time) ([]*domain.Candle, error)
}
