package signature

import (
	"crypto/hmac"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Verification failures.
var (
	ErrMissingSignature = errors.New("signature: missing signature headers")
	ErrStaleTimestamp   = errors.New("signature: timestamp outside tolerance")
	ErrMismatch         = errors.New("signature: signature mismatch")
)

// Verify checks whether the given signature matches the expected HMAC-SHA256
// signature for the payload, secret, and timestamp.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// Verifier checks signed requests against one or more secrets. Several
// secrets allow rotation without downtime.
type Verifier struct {
	secrets   []string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier returns a Verifier accepting any of secrets. A non-positive
// tolerance falls back to DefaultTolerance.
func NewVerifier(tolerance time.Duration, secrets ...string) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secrets: secrets, tolerance: tolerance, now: time.Now}
}

// VerifyRequest checks the signature headers of r against body.
func (v *Verifier) VerifyRequest(r *http.Request, body []byte) error {
	sig := r.Header.Get(HeaderSignature)
	raw := r.Header.Get(HeaderTimestamp)
	if sig == "" || raw == "" {
		return ErrMissingSignature
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	return v.Verify(body, ts, sig)
}

// Verify checks sig for payload at timestamp.
func (v *Verifier) Verify(payload []byte, timestamp int64, sig string) error {
	skew := v.now().Sub(time.Unix(timestamp, 0))
	if skew < -v.tolerance || skew > v.tolerance {
		return ErrStaleTimestamp
	}
	for _, secret := range v.secrets {
		if Verify(payload, secret, timestamp, sig) {
			return nil
		}
	}
	return ErrMismatch
}
