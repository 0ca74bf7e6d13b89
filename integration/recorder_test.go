package integration_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/catalog"
	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/integration"
	"github.com/xraph/beacon/session"
	"github.com/xraph/beacon/store/memory"
)

func ctx() context.Context { return context.Background() }

func newRecorder(t *testing.T, opts ...beacon.Option) (*integration.Recorder, *beacon.Beacon, *memory.Store) {
	t.Helper()
	s := memory.New()
	b, err := beacon.New(append([]beacon.Option{beacon.WithStore(s)}, opts...)...)
	require.NoError(t, err)
	return integration.NewRecorder(b), b, s
}

func only(t *testing.T, s *memory.Store) *event.Event {
	t.Helper()
	events, err := s.Recent(ctx(), 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func TestPaymentCompleted(t *testing.T) {
	r, _, s := newRecorder(t)

	ok, err := r.PaymentCompleted(ctx(), 42, true)
	require.NoError(t, err)
	assert.True(t, ok)

	evt := only(t, s)
	assert.Equal(t, integration.TypeSMIPayment, evt.Type)
	assert.Equal(t, map[string]any{"job_id": "42", "admin_override": true}, evt.Data)
	assert.Equal(t, session.ServerSide, evt.SessionID)
	assert.Equal(t, beacon.OriginServer.UserAgent, evt.UserAgent)
	assert.Empty(t, evt.Referrer)
}

func TestPaymentCompleted_NoOverrideFlag(t *testing.T) {
	r, _, s := newRecorder(t)

	_, err := r.PaymentCompleted(ctx(), 7, false)
	require.NoError(t, err)
	assert.NotContains(t, only(t, s).Data, "admin_override")
}

func TestJobStatusChanged(t *testing.T) {
	r, _, s := newRecorder(t)

	_, err := r.JobStatusChanged(ctx(), 9, "queued", "processing")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"job_id":     "9",
		"old_status": "queued",
		"new_status": "processing",
	}, only(t, s).Data)
}

func TestProvisioningFailed_TruncatesError(t *testing.T) {
	r, _, s := newRecorder(t)

	_, err := r.ProvisioningFailed(ctx(), 5, "example.com", strings.Repeat("x", 500))
	require.NoError(t, err)

	evt := only(t, s)
	assert.Equal(t, integration.StatusFailed, evt.Data["status"])
	msg, _ := evt.Field("error")
	assert.LessOrEqual(t, len([]rune(msg)), integration.MaxErrorLen)
}

func TestAutoRefill_CountsTowardCredits(t *testing.T) {
	r, b, _ := newRecorder(t)

	_, err := r.CreditsPurchased(ctx(), 1, 100)
	require.NoError(t, err)
	_, err = r.AutoRefill(ctx(), 1, 50)
	require.NoError(t, err)

	res, err := b.Engine().Metrics(ctx(), "spawn", 30)
	require.NoError(t, err)
	assert.Equal(t, 150.0, res["credits_purchased"])
}

func TestSpawnMetrics(t *testing.T) {
	r, b, _ := newRecorder(t)

	for range 3 {
		_, err := r.ProvisioningCompleted(ctx(), 1, "ok.example.com")
		require.NoError(t, err)
	}
	_, err := r.ProvisioningFailed(ctx(), 2, "bad.example.com", "dns timeout")
	require.NoError(t, err)
	_, err = r.DomainRenewed(ctx(), 1, "ok.example.com")
	require.NoError(t, err)

	res, err := b.Engine().Metrics(ctx(), "spawn", 30)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res["signups"])
	assert.Equal(t, 1.0, res["failed"])
	assert.Equal(t, 75.0, res["success_rate"])
	assert.Equal(t, 1.0, res["domains_renewed"])
}

func TestRecorder_SkipsDisallowedTypes(t *testing.T) {
	c := catalog.New(catalog.BrowserDefaults()...)
	r, _, s := newRecorder(t, beacon.WithCatalog(c))

	ok, err := r.DomainRenewed(ctx(), 1, "example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestRecorder_Track(t *testing.T) {
	r, _, s := newRecorder(t)

	ok, err := r.Track(ctx(), "", nil, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Track(ctx(), "page_view", map[string]any{"path": "/"}, "https://example.com/")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/", only(t, s).PageURL)
}

func TestRecorder_WithOrigin(t *testing.T) {
	s := memory.New()
	b, err := beacon.New(beacon.WithStore(s))
	require.NoError(t, err)

	r := integration.NewRecorder(b, integration.WithOrigin(beacon.OriginAPI))
	_, err = r.CreditsPurchased(ctx(), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, session.APICall, only(t, s).SessionID)
}
