package memory

import (
	"context"
	"fmt"
	"sync"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// state is one consistent snapshot of all transactional records.
type state struct {
	accounts    map[string]domain.Account
	instruments map[string]domain.Instrument
	orders      map[string]domain.Order
	positions   map[string]domain.Position
	ledger      []domain.LedgerEntry // insertion order
	ledgerIDs   map[string]struct{}
}

func newState() *state {
	return &state{
		accounts:    make(map[string]domain.Account),
		instruments: make(map[string]domain.Instrument),
		orders:      make(map[string]domain.Order),
		positions:   make(map[string]domain.Position),
		ledgerIDs:   make(map[string]struct{}),
	}
}

// clone copies the maps; record values are copied by value.
func (s *state) clone() *state {
	c := &state{
		accounts:    make(map[string]domain.Account, len(s.accounts)),
		instruments: make(map[string]domain.Instrument, len(s.instruments)),
		orders:      make(map[string]domain.Order, len(s.orders)),
		positions:   make(map[string]domain.Position, len(s.positions)),
		ledger:      make([]domain.LedgerEntry, len(s.ledger)),
		ledgerIDs:   make(map[string]struct{}, len(s.ledgerIDs)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.instruments {
		c.instruments[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	copy(c.ledger, s.ledger)
	for k := range s.ledgerIDs {
		c.ledgerIDs[k] = struct{}{}
	}
	return c
}

// Store is an in-memory implementation of storage.TxManager.
// Transactions run one at a time against a private snapshot that replaces
// the committed state only when fn succeeds.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx runs fn against a snapshot and commits it if fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transaction panicked: %v", r)
		}
	}()

	if err := fn(ctx, &tx{st: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

type tx struct {
	st *state
}

func (t *tx) Accounts() storage.AccountStore       { return &AccountStore{st: t.st} }
func (t *tx) Instruments() storage.InstrumentStore { return &InstrumentStore{st: t.st} }
func (t *tx) Orders() storage.OrderStore           { return &OrderStore{st: t.st} }
func (t *tx) Positions() storage.PositionStore     { return &PositionStore{st: t.st} }
func (t *tx) Ledger() storage.LedgerStore          { return &LedgerStore{st: t.st} }

// page applies offset and limit to n items and returns the [lo, hi) bounds.
func page(n, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	hi := n
	if limit > 0 && offset+limit < n {
		hi = offset + limit
	}
	return offset, hi
}

var _ storage.TxManager = (*Store)(nil)
