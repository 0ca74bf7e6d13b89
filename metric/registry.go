package metric

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds metric sets by name.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]Set
}

// NewRegistry creates a registry holding the built-in Spawn set plus sets.
func NewRegistry(sets ...Set) (*Registry, error) {
	r := &Registry{sets: make(map[string]Set)}
	if err := r.Register(Spawn()); err != nil {
		return nil, err
	}
	for _, s := range sets {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and adds a set, replacing any set with the same name.
func (r *Registry) Register(s Set) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sets[s.Name] = s
	r.mu.Unlock()
	return nil
}

// Get returns a set by name.
func (r *Registry) Get(name string) (Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sets[name]
	if !ok {
		return Set{}, fmt.Errorf("%w: %q", ErrUnknownSet, name)
	}
	return s, nil
}

// Names returns the registered set names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sets))
	for name := range r.sets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
