package favorites

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arabweather/taqs/internal/models"
)

// MemoryStore is an in-memory Store for tests and single-run deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	cities []models.FavoriteCity
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// List returns favorites in insertion order.
func (s *MemoryStore) List(ctx context.Context) ([]models.FavoriteCity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FavoriteCity, len(s.cities))
	copy(out, s.cities)
	return out, nil
}

// Add stores a city unless its coordinate pair is already present.
func (s *MemoryStore) Add(ctx context.Context, city models.FavoriteCity) (models.FavoriteCity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := CityID(city.Lat, city.Lon)
	for _, existing := range s.cities {
		if existing.ID == id {
			return models.FavoriteCity{}, fmt.Errorf("%w: %s", ErrDuplicate, city.Name)
		}
	}

	city.ID = id
	city.AddedAt = time.Now()
	s.cities = append(s.cities, city)
	return city, nil
}

// Remove deletes a favorite by ID.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.cities {
		if existing.ID == id {
			s.cities = append(s.cities[:i], s.cities[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
