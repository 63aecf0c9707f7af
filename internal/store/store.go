// Package store provides PostgreSQL access to guardrail definitions,
// their lifetime counters, and project API-key lookups.
package store

import "database/sql"

// Store is backed by a database/sql pool using the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
