package event

import (
	"strconv"
	"strings"
	"time"

	"github.com/xraph/beacon/internal/entity"
)

// Event is one immutable record of a tracked occurrence.
type Event struct {
	entity.Entity

	// ID is assigned by the store on insert and increases with every row.
	ID int64 `json:"id"`

	// Type is the allow-listed category (e.g. "page_view", "search").
	Type string `json:"event_type"`

	// Data is the cleaned payload. Values are strings or booleans.
	Data map[string]any `json:"event_data"`

	// PageURL is the page the event fired on. May be empty.
	PageURL string `json:"page_url"`

	// Referrer is the document referrer. May be empty.
	Referrer string `json:"referrer"`

	// SessionID is the pseudo-anonymous client token or a sentinel for
	// events that did not come from a browser.
	SessionID string `json:"session_id"`

	// UserAgent is the caller's user agent or a sentinel.
	UserAgent string `json:"user_agent"`
}

// Field returns the text form of a payload field. Booleans render as
// "true"/"false". The second result is false when the field is absent or
// holds a non-scalar value.
func (e *Event) Field(name string) (string, bool) {
	return FieldText(e.Data, name)
}

// FieldText returns the text form of data[name].
func FieldText(data map[string]any, name string) (string, bool) {
	v, ok := data[name]
	if !ok {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// FieldNumber parses a payload field as a number. Non-numeric values yield 0.
func FieldNumber(data map[string]any, name string) float64 {
	s, ok := FieldText(data, name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// Period formats t as the bucket label for the given granularity.
func Period(t time.Time, g Granularity) string {
	t = t.UTC()
	if g == Hour {
		return t.Format(HourLayout)
	}
	return t.Format(DayLayout)
}
