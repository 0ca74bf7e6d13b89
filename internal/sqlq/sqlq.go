// Package sqlq collects positional query arguments for the SQL stores.
package sqlq

import (
	"strconv"
	"strings"
)

// Style is a placeholder syntax.
type Style int

const (
	// Question renders every placeholder as "?" (SQLite).
	Question Style = iota

	// Dollar renders numbered placeholders "$1", "$2", ... (PostgreSQL).
	Dollar
)

// Args accumulates bind values in the order their placeholders appear in
// the query text.
type Args struct {
	style Style
	vals  []any
}

// New returns an empty argument list for style.
func New(style Style) *Args {
	return &Args{style: style}
}

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.vals = append(a.vals, v)
	if a.style == Dollar {
		return "$" + strconv.Itoa(len(a.vals))
	}
	return "?"
}

// List appends every value and returns the comma-separated placeholders.
func (a *Args) List(vs []string) string {
	ph := make([]string, len(vs))
	for i, v := range vs {
		ph[i] = a.Add(v)
	}
	return strings.Join(ph, ", ")
}

// Values returns the bind values.
func (a *Args) Values() []any { return a.vals }

// Where joins conditions with AND, returning "" when there are none.
func Where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
