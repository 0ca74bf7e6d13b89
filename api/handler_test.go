package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/api"
	"github.com/xraph/beacon/id"
	"github.com/xraph/beacon/session"
	"github.com/xraph/beacon/store/memory"
)

const token = "s3cret"

// testServer creates a Handler backed by a memory store and returns the test server.
func testServer(t *testing.T, opts ...beacon.Option) (*httptest.Server, *memory.Store) {
	t.Helper()

	s := memory.New()
	b, err := beacon.New(append([]beacon.Option{beacon.WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}

	h := api.NewHandler(b, api.Config{AdminToken: token}, slog.Default())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, s
}

func do(t *testing.T, method, url string, body any, header http.Header) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func adminHeader() http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectMessage(t *testing.T, resp *http.Response, status int, msg string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected %d, got %d", status, resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["message"] != msg {
		t.Fatalf("expected message %q, got %v", msg, body)
	}
}

// --- Ingestion ---

func TestCollect_Success(t *testing.T) {
	srv, s := testServer(t)

	resp := do(t, "POST", srv.URL+"/v1/event", map[string]any{
		"event_type": "page_view",
		"event_data": map[string]any{},
		"page_url":   "https://example.com/",
	}, http.Header{"User-Agent": {"test-agent"}})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "beacon_session" {
			cookie = c
		}
	}
	if cookie == nil || !strings.HasPrefix(cookie.Value, "sess_") || !cookie.HttpOnly {
		t.Fatalf("expected an HttpOnly session cookie, got %+v", resp.Cookies())
	}

	events, _ := s.Recent(context.Background(), 10)
	if len(events) != 1 || events[0].UserAgent != "test-agent" || events[0].SessionID != cookie.Value {
		t.Fatalf("unexpected stored events: %+v", events)
	}
}

func TestCollect_ExistingSessionIsKept(t *testing.T) {
	srv, s := testServer(t)
	existing := id.NewSessionID().String()

	resp := do(t, "POST", srv.URL+"/v1/event", map[string]any{"event_type": "page_view"},
		http.Header{"Cookie": {"beacon_session=" + existing}})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(resp.Cookies()) != 0 {
		t.Fatalf("no cookie should be written, got %+v", resp.Cookies())
	}

	events, _ := s.Recent(context.Background(), 1)
	if events[0].SessionID != existing {
		t.Fatalf("expected passthrough session, got %q", events[0].SessionID)
	}
}

func TestCollect_ForgedSessionIsReplaced(t *testing.T) {
	srv, s := testServer(t)

	for _, forged := range []string{session.ServerSide, session.APICall, "sess_existing"} {
		resp := do(t, "POST", srv.URL+"/v1/event", map[string]any{"event_type": "page_view"},
			http.Header{"Cookie": {"beacon_session=" + forged}})
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}
		resp.Body.Close()

		var issued string
		for _, c := range resp.Cookies() {
			if c.Name == "beacon_session" {
				issued = c.Value
			}
		}
		if !strings.HasPrefix(issued, "sess_") {
			t.Fatalf("%q: expected a fresh session cookie, got %+v", forged, resp.Cookies())
		}

		events, _ := s.Recent(context.Background(), 1)
		if events[0].SessionID != issued {
			t.Fatalf("%q: stored session %q, want %q", forged, events[0].SessionID, issued)
		}
	}
}

func TestCollect_DoNotTrack(t *testing.T) {
	srv, s := testServer(t)

	resp := do(t, "POST", srv.URL+"/v1/event", map[string]any{"event_type": "page_view"},
		http.Header{"Dnt": {"1"}})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	if len(resp.Cookies()) != 0 {
		t.Fatal("do-not-track requests must not receive a cookie")
	}
	if s.Len() != 0 {
		t.Fatalf("expected no rows, got %d", s.Len())
	}
}

func TestCollect_InvalidType(t *testing.T) {
	srv, s := testServer(t)

	resp := do(t, "POST", srv.URL+"/v1/event", map[string]any{"event_type": "not_a_type"}, nil)
	expectMessage(t, resp, http.StatusBadRequest, "Invalid event type.")

	resp = do(t, "POST", srv.URL+"/v1/event", "{not json", nil)
	expectMessage(t, resp, http.StatusBadRequest, "Invalid event type.")

	if s.Len() != 0 {
		t.Fatalf("expected no rows, got %d", s.Len())
	}
}

func TestCollect_RejectsIntegrationTypes(t *testing.T) {
	srv, s := testServer(t)

	for _, body := range []map[string]any{
		{"event_type": "smi_payment", "event_data": map[string]any{"job_id": 1}},
		{"event_type": "spawn_provisioning", "event_data": map[string]any{"status": "complete"}},
		{"event_type": "spawn_credits", "event_data": map[string]any{"credits": 500}},
	} {
		resp := do(t, "POST", srv.URL+"/v1/event", body, nil)
		expectMessage(t, resp, http.StatusBadRequest, "Invalid event type.")
		if len(resp.Cookies()) != 0 {
			t.Fatalf("%v: rejected events must not set a cookie", body["event_type"])
		}
	}
	if s.Len() != 0 {
		t.Fatalf("expected no rows, got %d", s.Len())
	}

	// The same types stay open to the admin track route.
	resp := do(t, "POST", srv.URL+"/v1/track", map[string]any{"event_type": "smi_payment"}, adminHeader())
	var tr map[string]bool
	decodeBody(t, resp, &tr)
	if !tr["success"] {
		t.Fatal("expected smi_payment to be trackable by operators")
	}
}

func TestCollect_ToleratesMalformedOptionalFields(t *testing.T) {
	srv, s := testServer(t)

	resp := do(t, "POST", srv.URL+"/v1/event",
		`{"event_type":"search","event_data":"red panda","page_url":42,"referrer":null}`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	events, _ := s.Recent(context.Background(), 1)
	if events[0].PageURL != "" || events[0].Data["value"] != "red panda" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestCollect_RateLimited(t *testing.T) {
	srv, s := testServer(t, beacon.WithRateLimit(2))
	cookie := http.Header{"Cookie": {"beacon_session=" + id.NewSessionID().String()}}

	for range 2 {
		resp := do(t, "POST", srv.URL+"/v1/event", map[string]any{"event_type": "page_view"}, cookie)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}
	}

	resp := do(t, "POST", srv.URL+"/v1/event", map[string]any{"event_type": "page_view"}, cookie)
	expectMessage(t, resp, http.StatusTooManyRequests, "Rate limit exceeded.")

	if s.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", s.Len())
	}
}

func TestCollect_Preflight(t *testing.T) {
	srv, _ := testServer(t)

	resp := do(t, "OPTIONS", srv.URL+"/v1/event", nil, http.Header{
		"Origin":                        {"https://site.example"},
		"Access-Control-Request-Method": {"POST"},
	})
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		t.Fatalf("expected preflight success, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS headers on preflight")
	}
}

// --- Tracker ---

func TestTrackerScript(t *testing.T) {
	srv, _ := testServer(t)

	resp := do(t, "GET", srv.URL+"/tracker.js", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	script := string(body)

	if !strings.HasPrefix(script, "window.BeaconAnalytics = window.BeaconAnalytics || {") {
		t.Fatalf("missing config prelude: %.80s", script)
	}
	for _, want := range []string{`"endpoint":"/v1/event"`, `"page_view"`, `"nav_click"`, "doNotTrack", "msDoNotTrack"} {
		if !strings.Contains(script, want) {
			t.Fatalf("script should contain %s", want)
		}
	}
	if strings.Contains(script, `"spawn_domain"`) {
		t.Fatal("integration types must not be advertised to browsers")
	}
}

// --- Admin ---

func TestAdmin_RequiresToken(t *testing.T) {
	srv, _ := testServer(t)

	resp := do(t, "GET", srv.URL+"/v1/stats/counts", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/v1/stats/counts", nil, http.Header{"Authorization": {"Bearer wrong"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	b, err := beacon.New(beacon.WithStore(memory.New()))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(api.NewHandler(b, api.Config{}, nil))
	defer srv.Close()

	resp := do(t, "GET", srv.URL+"/v1/stats/counts", nil, http.Header{"Authorization": {"Bearer "}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTrackAndStats(t *testing.T) {
	srv, _ := testServer(t)

	resp := do(t, "POST", srv.URL+"/v1/track", map[string]any{
		"event_type": "search",
		"event_data": map[string]any{"query": "red panda"},
	}, adminHeader())
	var tr map[string]bool
	decodeBody(t, resp, &tr)
	if !tr["success"] {
		t.Fatalf("expected success, got %v", tr)
	}

	resp = do(t, "POST", srv.URL+"/v1/track", map[string]any{"event_type": "unregistered_type"}, adminHeader())
	decodeBody(t, resp, &tr)
	if tr["success"] {
		t.Fatal("expected success=false for unregistered type")
	}

	resp = do(t, "GET", srv.URL+"/v1/stats/searches?limit=5", nil, adminHeader())
	var searches []map[string]any
	decodeBody(t, resp, &searches)
	if len(searches) != 1 || searches[0]["query"] != "red panda" || searches[0]["total"] != float64(1) {
		t.Fatalf("unexpected searches: %v", searches)
	}

	resp = do(t, "GET", srv.URL+"/v1/stats/counts?days=-4", nil, adminHeader())
	var counts []map[string]any
	decodeBody(t, resp, &counts)
	if len(counts) != 1 || counts[0]["event_type"] != "search" {
		t.Fatalf("unexpected counts: %v", counts)
	}

	resp = do(t, "GET", srv.URL+"/v1/stats/funnel", nil, adminHeader())
	var funnel map[string]any
	decodeBody(t, resp, &funnel)
	if funnel["conversion_rate"] != float64(0) || funnel["start"] != "smi_click" {
		t.Fatalf("unexpected funnel: %v", funnel)
	}

	resp = do(t, "GET", srv.URL+"/v1/stats/metrics/spawn?days=7", nil, adminHeader())
	var metrics map[string]float64
	decodeBody(t, resp, &metrics)
	if _, ok := metrics["success_rate"]; !ok {
		t.Fatalf("unexpected metrics: %v", metrics)
	}

	resp = do(t, "GET", srv.URL+"/v1/stats/metrics/unknown", nil, adminHeader())
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown set, got %d", resp.StatusCode)
	}
}

func TestListEvents(t *testing.T) {
	srv, _ := testServer(t)

	for _, typ := range []string{"page_view", "search", "page_view"} {
		resp := do(t, "POST", srv.URL+"/v1/track", map[string]any{"event_type": typ}, adminHeader())
		resp.Body.Close()
	}

	resp := do(t, "GET", srv.URL+"/v1/events?event_type=page_view&order=asc", nil, adminHeader())
	var events []map[string]any
	decodeBody(t, resp, &events)
	if len(events) != 2 {
		t.Fatalf("expected 2 page views, got %d", len(events))
	}
	if events[0]["id"].(float64) > events[1]["id"].(float64) {
		t.Fatalf("expected ascending order, got %v", events)
	}

	resp = do(t, "GET", srv.URL+"/v1/events?date_from=yesterday", nil, adminHeader())
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", resp.StatusCode)
	}
}

func TestEventTypes_CRUD(t *testing.T) {
	srv, _ := testServer(t)

	resp := do(t, "POST", srv.URL+"/v1/event-types", map[string]any{
		"name":        "video_play",
		"description": "Fired when a video starts",
	}, adminHeader())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, "POST", srv.URL+"/v1/event", map[string]any{"event_type": "video_play"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("registered type should be accepted, got %d", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/v1/event-types?group=browser", nil, adminHeader())
	var list []map[string]any
	decodeBody(t, resp, &list)
	found := false
	for _, d := range list {
		if d["name"] == "video_play" {
			found = true
		}
		if d["group"] != "browser" {
			t.Fatalf("group filter leaked %v", d)
		}
	}
	if !found {
		t.Fatal("expected video_play in list")
	}

	resp = do(t, "DELETE", srv.URL+"/v1/event-types/video_play", nil, adminHeader())
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.StatusCode)
	}

	resp = do(t, "DELETE", srv.URL+"/v1/event-types/video_play", nil, adminHeader())
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/v1/event-types", map[string]any{"description": "no name"}, adminHeader())
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv, s := testServer(t)

	resp := do(t, "GET", srv.URL+"/healthz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	s.Close()
	resp = do(t, "GET", srv.URL+"/healthz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}
