// Package favorites stores the user's saved cities. Uniqueness is by
// coordinate pair; the canonical ID for a city is its "{lat}-{lon}" string.
package favorites

import (
	"context"
	"errors"
	"fmt"

	"github.com/arabweather/taqs/internal/models"
)

var (
	ErrDuplicate = errors.New("city already in favorites")
	ErrNotFound  = errors.New("favorite not found")
)

// CityID builds the canonical favorite ID from a coordinate pair.
func CityID(lat, lon float64) string {
	return fmt.Sprintf("%g-%g", lat, lon)
}

// Store persists favorite cities.
type Store interface {
	// List returns favorites in insertion order.
	List(ctx context.Context) ([]models.FavoriteCity, error)
	// Add stores a city, assigning its canonical ID and timestamp. Adding a
	// coordinate pair that already exists returns ErrDuplicate.
	Add(ctx context.Context, city models.FavoriteCity) (models.FavoriteCity, error)
	// Remove deletes a favorite by ID. Unknown IDs return ErrNotFound.
	Remove(ctx context.Context, id string) error
}
