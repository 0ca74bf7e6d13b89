package beacon

import (
	"time"

	"github.com/xraph/beacon/aggregate"
	"github.com/xraph/beacon/ratelimit"
	"github.com/xraph/beacon/sanitize"
	"github.com/xraph/beacon/session"
)

// Config holds the configuration for a Beacon instance.
type Config struct {
	// RateLimit is the number of events one session may record per window.
	RateLimit int

	// RateWindow is the length of a rate-limit window.
	RateWindow time.Duration

	// CookieName is the name of the session cookie.
	CookieName string

	// Limits bounds the size of cleaned payload values and URLs.
	Limits sanitize.Limits

	// Defaults are the aggregation parameter defaults.
	Defaults aggregate.Defaults
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit:  ratelimit.DefaultLimit,
		RateWindow: ratelimit.DefaultWindow,
		CookieName: session.DefaultCookieName,
		Limits:     sanitize.DefaultLimits(),
		Defaults:   aggregate.DefaultDefaults(),
	}
}
