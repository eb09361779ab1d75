// Package store implements the content store: the single durable home for
// content items, signals, channels, internal logs, and settings.
//
// The store keeps O(1) counters for /stats in memory, materialized lazily
// from the durable tables on first use and adjusted on every write path.
// Writes are expected to arrive through the coordinator's single writer;
// reads may be issued concurrently.
package store

import (
	"database/sql"
	"errors"
	"log/slog"
	"sync"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to all durable refinery state.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Cached counters for Stats(). Guarded by countersMu; initialized
	// lazily from SELECT COUNT(*) on first use.
	countersMu   sync.Mutex
	countersInit bool
	itemCount    int64
	signalCount  int64
	channelCount int64
}

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "store"),
	}
}

// DB exposes the underlying handle for health checks and the event publisher.
func (s *Store) DB() *sql.DB {
	return s.db
}
