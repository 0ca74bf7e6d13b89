// Package id issues the TypeID-based tokens Beacon hands out.
//
// Tokens are K-sortable (UUIDv7-based) and render as "prefix_suffix" using
// only [a-z0-9_], so they can be stored in a cookie without escaping.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the kind of token.
type Prefix string

// PrefixSession marks browser session tokens.
const PrefixSession Prefix = "sess"

// ID is a prefixed TypeID. The zero value is Nil.
type ID struct {
	tid   typeid.TypeID
	valid bool
}

// Nil is the zero ID.
var Nil ID

// New generates an ID with the given prefix. It panics on an invalid prefix.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{tid: tid, valid: true}
}

// NewSessionID generates a session token.
func NewSessionID() ID { return New(PrefixSession) }

// ParseSessionID parses s and requires the session prefix.
func ParseSessionID(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse session: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse session %q: %w", s, err)
	}
	if p := Prefix(tid.Prefix()); p != PrefixSession {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", PrefixSession, p)
	}
	return ID{tid: tid, valid: true}, nil
}

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.tid.String()
}
