// Package beacon provides a first-party event analytics collector for Go.
//
// Beacon is a library with a small standalone server. Browser pages post
// discrete named events (page views, clicks, searches) to an ingestion
// endpoint; Beacon validates them against a mutable allow list, strips
// markup from the payload, rate-limits each session and persists the event.
// An aggregation engine answers operator questions over the stored events:
// counts by type, top searches and referrers, navigation clicks, time series,
// funnels and declarative metric sets.
//
// Key features:
//   - Allow-listed event types with wildcard patterns
//   - Payload sanitization to flat maps of bounded plain text
//   - Per-session fixed-window rate limiting, in process or on Redis
//   - Composable store pattern with multiple backends (Postgres, SQLite, MongoDB, Redis, Memory)
//   - Do-not-track honored on the server and in the served tracker script
//
// Quick start:
//
//	b, err := beacon.New(
//	    beacon.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	http.Handle("/", api.NewHandler(b, api.Config{}, logger))
//
//	b.Track(ctx, "page_view", nil, "https://example.com/")
package beacon
