// Package entity defines the timestamp base shared by Beacon records.
package entity

import "time"

// Entity is the base type embedded by Beacon records. Events are append-only,
// so only the creation time is tracked.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
}

// New returns an Entity stamped with the current UTC time.
func New() Entity {
	return Entity{CreatedAt: Now()}
}

// Now returns the current UTC time.
func Now() time.Time {
	return time.Now().UTC()
}
