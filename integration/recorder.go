// Package integration records business events from backend services.
//
// A Recorder turns typed domain callbacks (payments, job status changes,
// credit purchases, provisioning and renewals) into analytics events. It
// writes through a Tracker: either the in-process *beacon.Beacon or a
// Client that posts signed requests to a remote collector.
package integration

import (
	"context"
	"log/slog"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/sanitize"
)

// Event types written by the Recorder.
const (
	TypeSMIPayment        = "smi_payment"
	TypeSMIJobStatus      = "smi_job_status"
	TypeSpawnCredits      = "spawn_credits"
	TypeSpawnProvisioning = "spawn_provisioning"
	TypeSpawnDomain       = "spawn_domain"
)

// Provisioning outcomes stored in the "status" field.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// MaxErrorLen bounds the provisioning error message, in runes.
const MaxErrorLen = 200

// Tracker records an event attributed to an origin. *beacon.Beacon and
// *Client satisfy it.
type Tracker interface {
	TrackFrom(ctx context.Context, origin beacon.Origin, eventType string, data any, pageURL string) (bool, error)
}

// Recorder writes typed integration events. Types missing from the
// collector's allow-list are skipped and reported as (false, nil).
type Recorder struct {
	tracker Tracker
	origin  beacon.Origin
	logger  *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used for skipped events.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithOrigin overrides the attribution, which defaults to beacon.OriginServer.
func WithOrigin(o beacon.Origin) Option {
	return func(r *Recorder) { r.origin = o }
}

// NewRecorder returns a Recorder writing through t.
func NewRecorder(t Tracker, opts ...Option) *Recorder {
	r := &Recorder{
		tracker: t,
		origin:  beacon.OriginServer,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PaymentCompleted records a paid SMI job. adminOverride marks payments
// waived by an operator.
func (r *Recorder) PaymentCompleted(ctx context.Context, jobID uint64, adminOverride bool) (bool, error) {
	data := map[string]any{"job_id": jobID}
	if adminOverride {
		data["admin_override"] = true
	}
	return r.record(ctx, TypeSMIPayment, data)
}

// JobStatusChanged records an SMI job moving between statuses.
func (r *Recorder) JobStatusChanged(ctx context.Context, jobID uint64, oldStatus, newStatus string) (bool, error) {
	return r.record(ctx, TypeSMIJobStatus, map[string]any{
		"job_id":     jobID,
		"old_status": oldStatus,
		"new_status": newStatus,
	})
}

// CreditsPurchased records a credit purchase.
func (r *Recorder) CreditsPurchased(ctx context.Context, customerID, credits uint64) (bool, error) {
	return r.record(ctx, TypeSpawnCredits, map[string]any{
		"customer_id": customerID,
		"credits":     credits,
	})
}

// AutoRefill records credits added by an automatic top-up. It shares the
// purchase event type so credit sums include refills.
func (r *Recorder) AutoRefill(ctx context.Context, customerID, credits uint64) (bool, error) {
	return r.record(ctx, TypeSpawnCredits, map[string]any{
		"customer_id": customerID,
		"credits":     credits,
		"auto_refill": true,
	})
}

// ProvisioningCompleted records a successful site provisioning.
func (r *Recorder) ProvisioningCompleted(ctx context.Context, customerID uint64, domain string) (bool, error) {
	return r.record(ctx, TypeSpawnProvisioning, map[string]any{
		"customer_id": customerID,
		"domain":      domain,
		"status":      StatusComplete,
	})
}

// ProvisioningFailed records a failed provisioning. errMsg is cut to
// MaxErrorLen runes.
func (r *Recorder) ProvisioningFailed(ctx context.Context, customerID uint64, domain, errMsg string) (bool, error) {
	return r.record(ctx, TypeSpawnProvisioning, map[string]any{
		"customer_id": customerID,
		"domain":      domain,
		"status":      StatusFailed,
		"error":       sanitize.Truncate(errMsg, MaxErrorLen),
	})
}

// DomainRenewed records a domain renewal.
func (r *Recorder) DomainRenewed(ctx context.Context, customerID uint64, domain string) (bool, error) {
	return r.record(ctx, TypeSpawnDomain, map[string]any{
		"customer_id": customerID,
		"domain":      domain,
	})
}

// Track records an arbitrary event type with the Recorder's origin.
func (r *Recorder) Track(ctx context.Context, eventType string, data map[string]any, pageURL string) (bool, error) {
	if eventType == "" {
		return false, nil
	}
	return r.tracker.TrackFrom(ctx, r.origin, eventType, data, pageURL)
}

func (r *Recorder) record(ctx context.Context, eventType string, data map[string]any) (bool, error) {
	ok, err := r.tracker.TrackFrom(ctx, r.origin, eventType, data, "")
	if err != nil {
		return false, err
	}
	if !ok {
		r.logger.DebugContext(ctx, "integration event skipped", "type", eventType)
	}
	return ok, nil
}
