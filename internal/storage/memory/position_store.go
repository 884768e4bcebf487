package memory

import (
	"context"
	"sort"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// PositionStore is the in-memory storage.PositionStore of one transaction.
type PositionStore struct {
	st *state
}

// Insert adds a new position with Version 1.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.ID == "" || p.AccountID == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.st.positions[p.ID]; exists {
		return storage.ErrDuplicateKey
	}
	p.Version = 1
	s.st.positions[p.ID] = *p
	return nil
}

// GetByID retrieves a position by its ID.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.Position, error) {
	p, ok := s.st.positions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// Update compares-and-swaps on p.Version.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	cur, ok := s.st.positions[p.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.Version != p.Version {
		return storage.ErrConflict
	}
	p.Version++
	s.st.positions[p.ID] = *p
	return nil
}

// FindOpen retrieves the oldest open position for (account, instrument, side).
func (s *PositionStore) FindOpen(_ context.Context, accountID, instrumentID string, side domain.PositionSide) (*domain.Position, error) {
	var found *domain.Position
	for _, p := range s.st.positions {
		if !p.IsOpen || p.AccountID != accountID || p.InstrumentID != instrumentID || p.Side != side {
			continue
		}
		if found == nil || openedBefore(&p, found) {
			positionCopy := p
			found = &positionCopy
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

// ListByAccount retrieves positions of an account, newest first.
func (s *PositionStore) ListByAccount(_ context.Context, accountID string, f storage.PositionFilter) ([]*domain.Position, error) {
	var result []*domain.Position
	for _, p := range s.st.positions {
		if p.AccountID != accountID {
			continue
		}
		if f.IsOpen != nil && p.IsOpen != *f.IsOpen {
			continue
		}
		positionCopy := p
		result = append(result, &positionCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return openedBefore(result[j], result[i])
	})

	lo, hi := page(len(result), f.Limit, f.Offset)
	return result[lo:hi], nil
}

// ListOpen retrieves all open positions, ordered by opened_at ASC.
func (s *PositionStore) ListOpen(_ context.Context) ([]*domain.Position, error) {
	var result []*domain.Position
	for _, p := range s.st.positions {
		if p.IsOpen {
			positionCopy := p
			result = append(result, &positionCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return openedBefore(result[i], result[j])
	})
	return result, nil
}

func openedBefore(a, b *domain.Position) bool {
	if !a.OpenedAt.Equal(b.OpenedAt) {
		return a.OpenedAt.Before(b.OpenedAt)
	}
	return a.ID < b.ID
}

var _ storage.PositionStore = (*PositionStore)(nil)
