package sanitize_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/beacon/catalog"
	"github.com/xraph/beacon/sanitize"
)

func newValidator() *sanitize.Validator {
	return sanitize.NewValidator(catalog.NewDefault(), sanitize.Limits{})
}

func TestCleanRejectsUnknownAndEmpty(t *testing.T) {
	v := newValidator()

	for _, typ := range []string{"", "   ", "unregistered_event", "<b></b>"} {
		if _, _, err := v.Clean(typ, nil); !errors.Is(err, sanitize.ErrRejected) {
			t.Fatalf("Clean(%q): expected ErrRejected, got %v", typ, err)
		}
	}
}

func TestCleanFollowsAllowListChanges(t *testing.T) {
	cat := catalog.New()
	v := sanitize.NewValidator(cat, sanitize.Limits{})

	if _, _, err := v.Clean("checkout", nil); !errors.Is(err, sanitize.ErrRejected) {
		t.Fatalf("expected rejection before Register, got %v", err)
	}

	cat.Register(catalog.Definition{Name: "checkout"})

	typ, data, err := v.Clean("checkout", nil)
	if err != nil {
		t.Fatal(err)
	}
	if typ != "checkout" {
		t.Fatalf("type = %q", typ)
	}
	if data == nil || len(data) != 0 {
		t.Fatalf("expected empty payload, got %v", data)
	}
}

func TestPayload(t *testing.T) {
	v := newValidator()

	tests := []struct {
		name string
		raw  any
		want map[string]any
	}{
		{
			name: "nil",
			raw:  nil,
			want: map[string]any{},
		},
		{
			name: "bare string is wrapped",
			raw:  "hello",
			want: map[string]any{"value": "hello"},
		},
		{
			name: "keys normalized",
			raw:  map[string]any{"Query Text!": "red panda", "$$$": "gone"},
			want: map[string]any{"querytext": "red panda"},
		},
		{
			name: "booleans preserved, numbers stringified",
			raw:  map[string]any{"admin_override": true, "job_id": float64(42), "amount": 12.5},
			want: map[string]any{"admin_override": true, "job_id": "42", "amount": "12.5"},
		},
		{
			name: "nested values dropped",
			raw:  map[string]any{"keep": "yes", "obj": map[string]any{"a": 1}, "list": []any{1, 2}, "null": nil},
			want: map[string]any{"keep": "yes"},
		},
		{
			name: "markup and control characters stripped",
			raw:  map[string]any{"label": "<b>Buy</b>\x00 now\n<script>alert(1)</script>"},
			want: map[string]any{"label": "Buy now"},
		},
		{
			name: "json body",
			raw:  json.RawMessage(`{"query":"red panda","n":7}`),
			want: map[string]any{"query": "red panda", "n": "7"},
		},
		{
			name: "json string body",
			raw:  json.RawMessage(`"just text"`),
			want: map[string]any{"value": "just text"},
		},
		{
			name: "malformed json",
			raw:  json.RawMessage(`{"query":`),
			want: map[string]any{},
		},
		{
			name: "json array",
			raw:  json.RawMessage(`[1,2,3]`),
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Payload(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, w := range tt.want {
				if got[k] != w {
					t.Fatalf("key %q: got %#v, want %#v", k, got[k], w)
				}
			}
		})
	}
}

func TestFieldLimits(t *testing.T) {
	v := newValidator()

	long := strings.Repeat("a", 300)
	got := v.Payload(map[string]any{"text": long, "href": "https://example.com/x", "note": long})

	if n := len(got["text"].(string)); n != 100 {
		t.Fatalf("text length = %d, want 100", n)
	}
	if n := len(got["note"].(string)); n != 300 {
		t.Fatalf("note length = %d, want 300", n)
	}

	tight := sanitize.NewValidator(catalog.NewDefault(), sanitize.Limits{MaxText: 10})
	got = tight.Payload(map[string]any{"note": long})
	if n := len(got["note"].(string)); n != 10 {
		t.Fatalf("note length = %d, want 10", n)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"  red   panda  ", 0, "red panda"},
		{"<a href='x'>link</a>", 0, "link"},
		{"a\tb\r\nc", 0, "a b c"},
		{"<style>p{}</style>text", 0, "text"},
		{"héllo wörld", 5, "héllo"},
		{"abc def", 4, "abc"},
		{"\xff\xfebad", 0, "bad"},
	}
	for _, tt := range tests {
		if got := sanitize.Text(tt.in, tt.max); got != tt.want {
			t.Errorf("Text(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/path?q=1", "https://example.com/path?q=1"},
		{"http://example.com", "http://example.com"},
		{"javascript:alert(1)", ""},
		{"data:text/html,hi", ""},
		{"/relative/path?x=1#top", "/relative/path?x=1#top"},
		{"?s=red+panda", "?s=red+panda"},
		{"#gallery", "#gallery"},
		{"relative/path", ""},
		{"//evil.example/path", ""},
		{"https:///no-host", ""},
		{"https://exa mple.com", ""},
		{"", ""},
		{"https://example.com/" + strings.Repeat("a", 600), "https://example.com/" + strings.Repeat("a", 480)},
	}
	for _, tt := range tests {
		if got := sanitize.URL(tt.in, 500); got != tt.want {
			t.Errorf("URL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestURL_CutsWithoutBreakingEscapes(t *testing.T) {
	long := "https://example.com/?q=" + strings.Repeat("%C3%A9", 200)

	got := sanitize.URL(long, 500)
	if len(got) > 500 || !strings.HasPrefix(got, "https://example.com/?q=%C3%A9") {
		t.Fatalf("unexpected cut: %q", got)
	}
	if i := strings.LastIndexByte(got, '%'); i > len(got)-3 {
		t.Fatalf("partial escape left at the end of %q", got)
	}
	if got := sanitize.URL(long, 0); got != long {
		t.Fatal("max <= 0 should keep the whole URL")
	}
}

func TestKeyAndToken(t *testing.T) {
	if got := sanitize.Key("Event-Data_1 !"); got != "event-data_1" {
		t.Fatalf("Key = %q", got)
	}
	if got := sanitize.Token("sess_01H455;drop table"); got != "sess_01H455droptable" {
		t.Fatalf("Token = %q", got)
	}
	if got := sanitize.Token(strings.Repeat("x", 100)); len(got) != 64 {
		t.Fatalf("Token length = %d", len(got))
	}
}
