package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Store implements the persistence interfaces of the service layer on top of
// PostgreSQL.
type Store struct {
	db     *DB
	logger zerolog.Logger
}

// NewStore creates a Store backed by the given database.
func NewStore(database *DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     database,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// WithOrganizationLock runs fn while holding a session-level advisory lock
// derived from the organization id. The lock rides on a dedicated connection
// so pool churn cannot release it early; it serializes read-modify-write
// cycles on the same record across replicas.
func (s *Store) WithOrganizationLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	conn, err := s.db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection for organization lock: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", id); err != nil {
		return fmt.Errorf("acquire organization lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock(hashtext($1))", id)
	}()

	return fn(ctx)
}
