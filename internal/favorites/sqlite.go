package favorites

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/arabweather/taqs/internal/models"
)

const (
	sqliteCreateTableSQL = `
		CREATE TABLE IF NOT EXISTS favorite_cities (
			id TEXT PRIMARY KEY,
			city_name TEXT NOT NULL,
			country TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`

	sqliteInsertSQL = `
		INSERT INTO favorite_cities (id, city_name, country, lat, lon, added_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	sqliteSelectAllSQL = `
		SELECT id, city_name, country, lat, lon, added_at
		FROM favorite_cities
		ORDER BY added_at, id
	`

	sqliteDeleteSQL = `
		DELETE FROM favorite_cities
		WHERE id = ?
	`
)

// SQLiteStore persists favorites in a SQLite database file, surviving
// restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs
// migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(sqliteCreateTableSQL)
	return err
}

// List returns favorites in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]models.FavoriteCity, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectAllSQL)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	var cities []models.FavoriteCity
	for rows.Next() {
		var c models.FavoriteCity
		if err := rows.Scan(&c.ID, &c.Name, &c.Country, &c.Lat, &c.Lon, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}

	return cities, nil
}

// Add stores a city. A primary key conflict on the coordinate ID maps to
// ErrDuplicate.
func (s *SQLiteStore) Add(ctx context.Context, city models.FavoriteCity) (models.FavoriteCity, error) {
	city.ID = CityID(city.Lat, city.Lon)
	city.AddedAt = time.Now()

	_, err := s.db.ExecContext(ctx, sqliteInsertSQL,
		city.ID, city.Name, city.Country, city.Lat, city.Lon, city.AddedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.FavoriteCity{}, fmt.Errorf("%w: %s", ErrDuplicate, city.Name)
		}
		return models.FavoriteCity{}, fmt.Errorf("insert favorite: %w", err)
	}

	return city, nil
}

// Remove deletes a favorite by ID.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, sqliteDeleteSQL, id)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
