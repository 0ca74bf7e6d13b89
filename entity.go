package beacon

import "github.com/xraph/beacon/internal/entity"

// Entity is the creation timestamp embedded by stored events.
type Entity = entity.Entity

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	return entity.New()
}
