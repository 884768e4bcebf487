package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// LedgerStore is the in-memory storage.LedgerStore of one transaction.
type LedgerStore struct {
	st *state
}

// Insert appends an entry.
func (s *LedgerStore) Insert(_ context.Context, e *domain.LedgerEntry) error {
	if e == nil || e.ID == "" || e.AccountID == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.st.ledgerIDs[e.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.st.ledgerIDs[e.ID] = struct{}{}
	s.st.ledger = append(s.st.ledger, *e)
	return nil
}

// ListByAccount retrieves entries newest first, ties broken by id DESC.
func (s *LedgerStore) ListByAccount(_ context.Context, accountID string, f storage.LedgerFilter) ([]*domain.LedgerEntry, error) {
	result := s.byAccount(accountID, f.Type)
	lo, hi := page(len(result), f.Limit, f.Offset)
	return result[lo:hi], nil
}

// Latest retrieves the newest entry of an account.
func (s *LedgerStore) Latest(_ context.Context, accountID string) (*domain.LedgerEntry, error) {
	result := s.byAccount(accountID, "")
	if len(result) == 0 {
		return nil, storage.ErrNotFound
	}
	return result[0], nil
}

// Totals returns count and signed sum of all entries of an account.
func (s *LedgerStore) Totals(_ context.Context, accountID string) (storage.LedgerTotals, error) {
	totals := storage.LedgerTotals{Sum: decimal.Zero}
	for _, e := range s.st.ledger {
		if e.AccountID == accountID {
			totals.Count++
			totals.Sum = totals.Sum.Add(e.Amount)
		}
	}
	return totals, nil
}

func (s *LedgerStore) byAccount(accountID string, entryType domain.EntryType) []*domain.LedgerEntry {
	var result []*domain.LedgerEntry
	for _, e := range s.st.ledger {
		if e.AccountID != accountID {
			continue
		}
		if entryType != "" && e.Type != entryType {
			continue
		}
		entryCopy := e
		result = append(result, &entryCopy)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

var _ storage.LedgerStore = (*LedgerStore)(nil)
