package memory

import (
	"context"
	"sort"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// OrderStore is the in-memory storage.OrderStore of one transaction.
type OrderStore struct {
	st *state
}

// Insert adds a new order with Version 1.
func (s *OrderStore) Insert(_ context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" || o.AccountID == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.st.orders[o.ID]; exists {
		return storage.ErrDuplicateKey
	}
	o.Version = 1
	s.st.orders[o.ID] = *o
	return nil
}

// GetByID retrieves an order by its ID.
func (s *OrderStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := s.st.orders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

// Update compares-and-swaps on o.Version.
func (s *OrderStore) Update(_ context.Context, o *domain.Order) error {
	if o == nil {
		return storage.ErrInvalidInput
	}
	cur, ok := s.st.orders[o.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Version != o.Version {
		return storage.ErrConflict
	}
	o.Version++
	s.st.orders[o.ID] = *o
	return nil
}

// ListByAccount retrieves orders of an account, newest first.
func (s *OrderStore) ListByAccount(_ context.Context, accountID string, f storage.OrderFilter) ([]*domain.Order, error) {
	var result []*domain.Order
	for _, o := range s.st.orders {
		if o.AccountID != accountID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		orderCopy := o
		result = append(result, &orderCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	lo, hi := page(len(result), f.Limit, f.Offset)
	return result[lo:hi], nil
}

var _ storage.OrderStore = (*OrderStore)(nil)
