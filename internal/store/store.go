// Package store is the typed access layer over the relational store.
// Workers never see raw row maps: every table the engine touches has a
// struct and upsert/select helpers here, keyed on the natural keys the
// sync pipeline relies on.
package store

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the shared connection pool.
type Store struct {
	DB *pgxpool.Pool
}

// New creates a Store over an open pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}
