package memory

import (
	"context"
	"sort"
	"strings"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// InstrumentStore is the in-memory storage.InstrumentStore of one transaction.
type InstrumentStore struct {
	st *state
}

// Insert adds a new instrument. Symbols are unique, case-insensitively.
func (s *InstrumentStore) Insert(_ context.Context, i *domain.Instrument) error {
	if i == nil || i.ID == "" || i.Symbol == "" {
		return storage.ErrInvalidInput
	}
	if _, exists := s.st.instruments[i.ID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.st.instruments {
		if strings.EqualFold(existing.Symbol, i.Symbol) {
			return storage.ErrDuplicateKey
		}
	}
	s.st.instruments[i.ID] = *i
	return nil
}

// GetByID retrieves an instrument by its ID.
func (s *InstrumentStore) GetByID(_ context.Context, id string) (*domain.Instrument, error) {
	i, ok := s.st.instruments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &i, nil
}

// GetBySymbol retrieves an instrument by symbol.
func (s *InstrumentStore) GetBySymbol(_ context.Context, symbol string) (*domain.Instrument, error) {
	for _, i := range s.st.instruments {
		if strings.EqualFold(i.Symbol, symbol) {
			instrumentCopy := i
			return &instrumentCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// List retrieves all instruments ordered by symbol.
func (s *InstrumentStore) List(_ context.Context) ([]*domain.Instrument, error) {
	result := make([]*domain.Instrument, 0, len(s.st.instruments))
	for _, i := range s.st.instruments {
		instrumentCopy := i
		result = append(result, &instrumentCopy)
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].Symbol < result[b].Symbol
	})
	return result, nil
}

var _ storage.InstrumentStore = (*InstrumentStore)(nil)
