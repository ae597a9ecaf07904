// Package store implements the system store: the shared database holding
// tenant records and the authoritative function definitions for all tenants,
// partitioned logically by tenant id.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/skiffcloud/skiff/internal/db"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store provides access to the system store. It is safe for concurrent use;
// the underlying pool handles concurrent sessions.
type Store struct {
	db db.Database
}

// New wraps an open database and ensures the schema exists.
func New(ctx context.Context, database db.Database) (*Store, error) {
	s := &Store{db: database}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying database for lifecycle management by the
// process entry point.
func (s *Store) DB() db.Database {
	return s.db
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'created',
			db_name TEXT NOT NULL,
			db_user TEXT NOT NULL,
			db_password TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS functions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE (tenant_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_functions_tenant ON functions(tenant_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
