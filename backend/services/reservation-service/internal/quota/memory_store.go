package quota

import (
	"context"
	"sync"

	"swapstation/backend/services/reservation-service/internal/models"
)

// MemoryStore keeps selections in process memory. It backs single-node runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]models.ReservationMap
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]models.ReservationMap)}
}

// Load returns a copy of the stored map, empty when the key is unknown.
func (s *MemoryStore) Load(_ context.Context, key string) (models.ReservationMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data[key]
	if !ok {
		return models.ReservationMap{}, nil
	}
	return m.Clone(), nil
}

// Save replaces the stored map.
func (s *MemoryStore) Save(_ context.Context, key string, reservations models.ReservationMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = reservations.Clone()
	return nil
}

// Delete drops the key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
