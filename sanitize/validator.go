package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
)

// ErrRejected is returned when an event type is empty or not allow-listed.
var ErrRejected = errors.New("sanitize: event type rejected")

// MaxTypeLen bounds the length of an event type name.
const MaxTypeLen = 50

// AllowList reports whether an event type is currently permitted.
// *catalog.Catalog satisfies it.
type AllowList interface {
	Allowed(name string) bool
}

// Limits bounds the size of cleaned values.
type Limits struct {
	// MaxText is the rune limit for any text value.
	MaxText int

	// MaxURL is the byte limit for page URLs and referrers.
	MaxURL int

	// Fields sets tighter rune limits for specific payload keys, such as
	// link text captured from the page.
	Fields map[string]int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxText: 500,
		MaxURL:  500,
		Fields: map[string]int{
			"text":  100,
			"label": 100,
		},
	}
}

// Validator checks event types against an injected allow-list and cleans
// payloads to flat maps of strings and booleans.
type Validator struct {
	allow  AllowList
	limits Limits
}

// NewValidator creates a Validator. Zero limits fall back to DefaultLimits.
func NewValidator(allow AllowList, limits Limits) *Validator {
	def := DefaultLimits()
	if limits.MaxText <= 0 {
		limits.MaxText = def.MaxText
	}
	if limits.MaxURL <= 0 {
		limits.MaxURL = def.MaxURL
	}
	if limits.Fields == nil {
		limits.Fields = def.Fields
	}
	return &Validator{allow: allow, limits: limits}
}

// Clean validates eventType and returns it with the cleaned payload.
// It returns ErrRejected when the type is empty or not allowed.
func (v *Validator) Clean(eventType string, raw any) (string, map[string]any, error) {
	t := Text(eventType, MaxTypeLen)
	if t == "" || v.allow == nil || !v.allow.Allowed(t) {
		return "", nil, ErrRejected
	}
	return t, v.Payload(raw), nil
}

// Payload cleans an untrusted payload. Maps keep their scalar entries under
// normalized keys, a bare string becomes {"value": s}, and anything else
// yields an empty map. Nested values are dropped.
func (v *Validator) Payload(raw any) map[string]any {
	switch x := raw.(type) {
	case json.RawMessage:
		return v.Payload(decode(x))
	case []byte:
		return v.Payload(decode(x))
	case map[string]any:
		return v.cleanMap(x)
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		return v.cleanMap(m)
	case string:
		out := make(map[string]any, 1)
		if s := v.text("value", x); s != "" {
			out["value"] = s
		}
		return out
	default:
		return map[string]any{}
	}
}

// URL cleans a page URL or referrer.
func (v *Validator) URL(s string) string {
	return URL(s, v.limits.MaxURL)
}

// Line cleans a free-text header value such as a user agent.
func (v *Validator) Line(s string) string {
	return Text(s, v.limits.MaxURL)
}

func (v *Validator) cleanMap(in map[string]any) map[string]any {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(in))
	for _, k := range keys {
		key := Key(k)
		if key == "" {
			continue
		}
		val, ok := v.scalar(key, in[k])
		if !ok {
			continue
		}
		out[key] = val
	}
	return out
}

func (v *Validator) scalar(key string, val any) (any, bool) {
	var s string
	switch x := val.(type) {
	case bool:
		return x, true
	case string:
		s = x
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		s = strconv.Itoa(x)
	case int32:
		s = strconv.FormatInt(int64(x), 10)
	case int64:
		s = strconv.FormatInt(x, 10)
	case uint:
		s = strconv.FormatUint(uint64(x), 10)
	case uint32:
		s = strconv.FormatUint(uint64(x), 10)
	case uint64:
		s = strconv.FormatUint(x, 10)
	default:
		return nil, false
	}
	return v.text(key, s), true
}

func (v *Validator) text(key, s string) string {
	max := v.limits.MaxText
	if n, ok := v.limits.Fields[key]; ok && n > 0 && n < max {
		max = n
	}
	return Text(s, max)
}

func decode(b []byte) any {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}
