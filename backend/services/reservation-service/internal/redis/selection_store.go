package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"swapstation/backend/services/reservation-service/internal/models"
)

const defaultSelectionTTL = 2 * time.Hour

// SelectionStore keeps each session's reservation map in redis. Every read and write
// pushes the expiry forward, so an idle session's selection disappears after ttl.
type SelectionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSelectionStore returns redis-backed store.
func NewSelectionStore(client *redis.Client, ttl time.Duration) *SelectionStore {
	if ttl <= 0 {
		ttl = defaultSelectionTTL
	}
	return &SelectionStore{client: client, ttl: ttl}
}

func (s *SelectionStore) key(session string) string {
	return fmt.Sprintf("reservations:selection:%s", session)
}

// Load returns the stored map, empty when nothing was saved yet.
func (s *SelectionStore) Load(ctx context.Context, session string) (models.ReservationMap, error) {
	raw, err := s.client.GetEx(ctx, s.key(session), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ReservationMap{}, nil
	}
	if err != nil {
		return nil, err
	}

	reservations := models.ReservationMap{}
	if err := json.Unmarshal(raw, &reservations); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return reservations, nil
}

// Save overwrites the stored map.
func (s *SelectionStore) Save(ctx context.Context, session string, reservations models.ReservationMap) error {
	if reservations == nil {
		reservations = models.ReservationMap{}
	}
	data, err := json.Marshal(reservations)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session), data, s.ttl).Err()
}

// Delete removes the stored map.
func (s *SelectionStore) Delete(ctx context.Context, session string) error {
	return s.client.Del(ctx, s.key(session)).Err()
}
