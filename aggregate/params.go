package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/sanitize"
)

// QueryParams is the untrusted input to QueryEvents, typically read
// straight from a query string.
type QueryParams struct {
	// EventType and EventTypes restrict the event types. Both may be set;
	// the union is used.
	EventType  string
	EventTypes []string

	// DateFrom and DateTo are inclusive bounds in UTC. Accepted forms are
	// "2006-01-02", "2006-01-02 15:04:05" and RFC 3339. A date-only DateTo
	// covers the whole day; one given to the second covers that second.
	DateFrom string
	DateTo   string

	// Order is "asc" (any case) for oldest first; anything else is newest first.
	Order string

	Limit  int
	Offset int
}

var boundLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// toQuery converts p into a store query, applying defaults and limits.
func (p QueryParams) toQuery(d Defaults) (event.Query, error) {
	q := event.Query{
		Order:  event.Desc,
		Limit:  clamp(p.Limit, d.QueryLimit),
		Offset: p.Offset,
	}
	if q.Limit > d.MaxQueryLimit {
		q.Limit = d.MaxQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if strings.EqualFold(strings.TrimSpace(p.Order), "asc") {
		q.Order = event.Asc
	}

	seen := make(map[string]bool)
	for _, raw := range append([]string{p.EventType}, p.EventTypes...) {
		t := sanitize.Text(raw, sanitize.MaxTypeLen)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		q.Types = append(q.Types, t)
	}

	from, err := parseBound(p.DateFrom, false)
	if err != nil {
		return event.Query{}, fmt.Errorf("%w: date_from: %v", ErrInvalidQuery, err)
	}
	to, err := parseBound(p.DateTo, true)
	if err != nil {
		return event.Query{}, fmt.Errorf("%w: date_to: %v", ErrInvalidQuery, err)
	}
	if from != nil && to != nil && from.After(*to) {
		return event.Query{}, fmt.Errorf("%w: date_from is after date_to", ErrInvalidQuery)
	}
	q.From, q.To = from, to
	return q, nil
}

// parseBound parses one date bound. An empty string means unbounded. When
// upper is set, a date-only value extends to the last instant of that day
// and a value without fractional seconds to the last instant of that second.
func parseBound(s string, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(event.DayLayout, s); err == nil {
		if upper {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	for _, layout := range boundLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			if upper && !strings.Contains(s, ".") {
				t = t.Add(time.Second - time.Nanosecond)
			}
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}
