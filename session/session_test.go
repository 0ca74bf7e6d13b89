package session

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResolveExistingToken(t *testing.T) {
	s := NewIdentifier("")
	existing := NewToken()

	r := httptest.NewRequest(http.MethodPost, "/v1/event", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: existing})
	w := httptest.NewRecorder()

	got := s.Resolve(w, r)
	if got != existing {
		t.Fatalf("got %q, want passthrough", got)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatal("no cookie should be written for an existing session")
	}

	// Deterministic for the same input.
	if again := s.Resolve(httptest.NewRecorder(), r); again != got {
		t.Fatalf("got %q then %q", got, again)
	}
}

func TestResolveReplacesForeignTokens(t *testing.T) {
	s := NewIdentifier("")

	for _, value := range []string{ServerSide, APICall, "sess_existing", "abc.def", "evt_01h455vb4pex5vsknk084sn02q"} {
		r := httptest.NewRequest(http.MethodPost, "/v1/event", nil)
		r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: value})
		w := httptest.NewRecorder()

		got := s.Resolve(w, r)
		if got == value || !strings.HasPrefix(got, "sess_") {
			t.Fatalf("%q: got %q, want a fresh token", value, got)
		}
		cookies := w.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value != got {
			t.Fatalf("%q: expected the fresh token as cookie, got %+v", value, cookies)
		}
	}
}

func TestResolveIssuesNewToken(t *testing.T) {
	s := NewIdentifier("")

	r := httptest.NewRequest(http.MethodPost, "/v1/event", nil)
	w := httptest.NewRecorder()

	token := s.Resolve(w, r)
	if token == "" {
		t.Fatal("expected a token")
	}
	if !strings.HasPrefix(token, "sess_") {
		t.Fatalf("unexpected token %q", token)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || c.Value != token {
		t.Fatalf("cookie = %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly {
		t.Fatal("cookie must be HttpOnly")
	}
	if c.Secure {
		t.Fatal("plain HTTP request should not get a Secure cookie")
	}
	if c.MaxAge != 0 || !c.Expires.IsZero() {
		t.Fatal("session cookie must not carry an expiry")
	}
	if c.Path != "/" {
		t.Fatalf("path = %q", c.Path)
	}
}

func TestResolveEmptyCookieIssuesNewToken(t *testing.T) {
	s := NewIdentifier("")

	r := httptest.NewRequest(http.MethodPost, "/v1/event", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: ";;;"})
	w := httptest.NewRecorder()

	token := s.Resolve(w, r)
	if token == "" || len(w.Result().Cookies()) != 1 {
		t.Fatal("a sanitized-away cookie should be replaced")
	}
}

func TestResolveSecure(t *testing.T) {
	s := NewIdentifier("custom")

	r := httptest.NewRequest(http.MethodPost, "/v1/event", nil)
	r.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	s.Resolve(w, r)

	c := w.Result().Cookies()[0]
	if c.Name != "custom" {
		t.Fatalf("name = %q", c.Name)
	}
	if !c.Secure {
		t.Fatal("TLS request should get a Secure cookie")
	}

	r = httptest.NewRequest(http.MethodPost, "/v1/event", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	w = httptest.NewRecorder()
	s.Resolve(w, r)
	if !w.Result().Cookies()[0].Secure {
		t.Fatal("forwarded HTTPS request should get a Secure cookie")
	}
}

func TestNewTokenUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok := NewToken()
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}
