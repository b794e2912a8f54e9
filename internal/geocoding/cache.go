// Package geocoding resolves addresses to coordinates through Nominatim,
// with a local cache in front to respect the service's usage policy.
package geocoding

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// cacheTTL is how long a resolved coordinate pair stays valid.
const cacheTTL = 24 * time.Hour

// Cache is a SQLite-backed lookup cache. It lives in a local file so
// restarts do not re-query the geocoder for known addresses.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (and initializes) the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS geocode_cache (
			address   TEXT PRIMARY KEY,
			lat       REAL NOT NULL,
			lng       REAL NOT NULL,
			cached_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init geocode cache: %w", err)
	}

	return &Cache{db: db}, nil
}

// Get returns a cached coordinate pair, or ok=false when absent or stale.
func (c *Cache) Get(address string) (lat, lng float64, ok bool, err error) {
	var cachedAt int64
	row := c.db.QueryRow(
		"SELECT lat, lng, cached_at FROM geocode_cache WHERE address = ?", address)
	if err := row.Scan(&lat, &lng, &cachedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("read geocode cache: %w", err)
	}

	if time.Since(time.Unix(cachedAt, 0)) > cacheTTL {
		return 0, 0, false, nil
	}
	return lat, lng, true, nil
}

// Put stores a coordinate pair for an address.
func (c *Cache) Put(address string, lat, lng float64) error {
	_, err := c.db.Exec(`
		INSERT INTO geocode_cache (address, lat, lng, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET lat = excluded.lat, lng = excluded.lng, cached_at = excluded.cached_at`,
		address, lat, lng, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("write geocode cache: %w", err)
	}
	return nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}
