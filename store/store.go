// Package store defines the composite Store interface for all Beacon persistence.
//
// Backends implement event.Store plus lifecycle methods. Memory and Redis
// reduce rows in process; SQLite, PostgreSQL and MongoDB push grouping
// down to the database.
package store

import (
	"context"

	"github.com/xraph/beacon/event"
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
