package memory

import (
	"context"
	"sort"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// AccountStore is the in-memory storage.AccountStore of one transaction.
type AccountStore struct {
	st *state
}

// Insert adds a new account with Version 1.
func (s *AccountStore) Insert(_ context.Context, a *domain.Account) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.st.accounts[a.ID]; exists {
		return storage.ErrDuplicateKey
	}
	a.Version = 1
	s.st.accounts[a.ID] = *a
	return nil
}

// GetByID retrieves an account by its ID.
func (s *AccountStore) GetByID(_ context.Context, id string) (*domain.Account, error) {
	a, ok := s.st.accounts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &a, nil
}

// Update compares-and-swaps on a.Version.
func (s *AccountStore) Update(_ context.Context, a *domain.Account) error {
	if a == nil {
		return storage.ErrInvalidInput
	}
	cur, ok := s.st.accounts[a.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Version != a.Version {
		return storage.ErrConflict
	}
	a.Version++
	s.st.accounts[a.ID] = *a
	return nil
}

// List retrieves all accounts ordered by created_at ASC.
func (s *AccountStore) List(_ context.Context) ([]*domain.Account, error) {
	result := make([]*domain.Account, 0, len(s.st.accounts))
	for _, a := range s.st.accounts {
		accountCopy := a
		result = append(result, &accountCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ storage.AccountStore = (*AccountStore)(nil)
