// Package catalog holds the allow-list of event types Beacon accepts.
//
// The allow-list is configuration, not code: callers construct it, extend it
// at runtime and hand it to the validator. Events already stored are never
// re-checked when the list changes.
package catalog

import (
	"sort"
	"strings"
	"sync"
)

// Catalog is a concurrency-safe, mutable allow-list of event types.
type Catalog struct {
	mu       sync.RWMutex
	types    map[string]Definition // exact names
	patterns map[string]Definition // entries containing "*"
}

// New creates a catalog holding defs.
func New(defs ...Definition) *Catalog {
	c := &Catalog{
		types:    make(map[string]Definition),
		patterns: make(map[string]Definition),
	}
	c.Register(defs...)
	return c
}

// NewDefault creates a catalog holding the browser and integration defaults.
func NewDefault() *Catalog {
	return New(Defaults()...)
}

// Register adds or replaces entries. Entries with an empty name are ignored;
// entries without a group join GroupBrowser.
func (c *Catalog) Register(defs ...Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, def := range defs {
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" {
			continue
		}
		if def.Group == "" {
			def.Group = GroupBrowser
		}
		if isPattern(def.Name) {
			c.patterns[def.Name] = def
			continue
		}
		c.types[def.Name] = def
	}
}

// Remove deletes an entry and reports whether it was present.
func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.types[name]; ok {
		delete(c.types, name)
		return true
	}
	if _, ok := c.patterns[name]; ok {
		delete(c.patterns, name)
		return true
	}
	return false
}

// Replace swaps the whole allow-list for defs.
func (c *Catalog) Replace(defs ...Definition) {
	c.mu.Lock()
	c.types = make(map[string]Definition)
	c.patterns = make(map[string]Definition)
	c.mu.Unlock()

	c.Register(defs...)
}

// Allowed reports whether name is permitted by an exact entry or a pattern.
func (c *Catalog) Allowed(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Lookup returns the entry permitting name. Exact entries win over patterns.
func (c *Catalog) Lookup(name string) (Definition, bool) {
	if name == "" {
		return Definition{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if def, ok := c.types[name]; ok {
		return def, true
	}
	for _, def := range c.patterns {
		if Match(def.Name, name) {
			return def, true
		}
	}
	return Definition{}, false
}

// AllowedIn reports whether name is permitted for group. An exact entry
// decides on its own group; otherwise any pattern of group may match.
func (c *Catalog) AllowedIn(group, name string) bool {
	if name == "" {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if def, ok := c.types[name]; ok {
		return def.Group == group
	}
	for _, def := range c.patterns {
		if def.Group == group && Match(def.Name, name) {
			return true
		}
	}
	return false
}

// Group returns a live view of the catalog restricted to group.
func (c *Catalog) Group(group string) View {
	return View{c: c, group: group}
}

// View is an allow-list over one group of a Catalog. It follows later
// changes to the catalog.
type View struct {
	c     *Catalog
	group string
}

// Allowed reports whether name is permitted in the view's group.
func (v View) Allowed(name string) bool {
	return v.c.AllowedIn(v.group, name)
}

// List returns every entry sorted by name.
func (c *Catalog) List() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Definition, 0, len(c.types)+len(c.patterns))
	for _, def := range c.types {
		out = append(out, def)
	}
	for _, def := range c.patterns {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the exact type names in group, sorted. An empty group
// returns every exact name. Patterns are not included.
func (c *Catalog) Names(group string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.types))
	for name, def := range c.types {
		if group != "" && def.Group != group {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
