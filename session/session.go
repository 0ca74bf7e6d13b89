// Package session assigns pseudo-anonymous session tokens to browser clients.
package session

import (
	"net/http"

	"github.com/xraph/beacon/id"
	"github.com/xraph/beacon/sanitize"
)

// Sentinel session ids for events that did not come from a browser.
const (
	// ServerSide marks events recorded by server-side integrations.
	ServerSide = "server-side"

	// APICall marks events recorded through the programmatic Track entry point.
	APICall = "api-call"
)

// DefaultCookieName is the cookie carrying the session token.
const DefaultCookieName = "beacon_session"

// Identifier resolves the session token of an HTTP client.
type Identifier struct {
	cookieName string
	newToken   func() string
}

// NewIdentifier creates an Identifier using the given cookie name
// (DefaultCookieName when empty).
func NewIdentifier(cookieName string) *Identifier {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Identifier{
		cookieName: cookieName,
		newToken:   NewToken,
	}
}

// CookieName returns the name of the session cookie.
func (s *Identifier) CookieName() string { return s.cookieName }

// Resolve returns the client's existing token, or issues a new one and sets
// it on w. Only tokens this package issued are reused; anything else,
// including the ServerSide and APICall sentinels, is replaced.
func (s *Identifier) Resolve(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil {
		if sid, err := id.ParseSessionID(sanitize.Token(c.Value)); err == nil {
			return sid.String()
		}
	}

	token := s.newToken()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// NewToken returns a fresh random session token.
func NewToken() string {
	return id.NewSessionID().String()
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
