package beacon

import (
	"errors"

	"github.com/xraph/beacon/aggregate"
	"github.com/xraph/beacon/metric"
)

// Sentinel errors returned by Beacon operations.
var (
	// ErrNoStore is returned when a Beacon is created without a store.
	ErrNoStore = errors.New("beacon: store is required")

	// ErrInvalidEventType is returned when an event type is empty after
	// cleaning or is not on the allow list.
	ErrInvalidEventType = errors.New("beacon: invalid event type")

	// ErrRateLimited is returned when a session exceeds its event budget
	// for the current window.
	ErrRateLimited = errors.New("beacon: rate limit exceeded")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("beacon: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("beacon: migration failed")

	// ErrInvalidQuery is returned when an aggregation parameter cannot be interpreted.
	ErrInvalidQuery = aggregate.ErrInvalidQuery

	// ErrUnknownMetricSet is returned when a metric set is not registered.
	ErrUnknownMetricSet = metric.ErrUnknownSet
)
