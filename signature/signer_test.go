package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/beacon/signature"
)

func TestSignKnownVector(t *testing.T) {
	signer := signature.NewSigner("bksec_testsecret123")
	payload := []byte(`{"event_type":"smi_payment"}`)
	timestamp := int64(1700000000)

	got := signer.Sign(payload, timestamp)

	// Compute expected HMAC-SHA256 independently.
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte("bksec_testsecret123"))
	mac.Write([]byte(content))
	expected := "v1=" + hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	payload := []byte(`{"credits":"100"}`)
	sig := signature.Sign(payload, "bksec_tamper", 1700000002)

	if signature.Verify([]byte(`{"credits":"900"}`), "bksec_tamper", 1700000002, sig) {
		t.Error("Verify() returned true for tampered payload")
	}
	if signature.Verify(payload, "bksec_other", 1700000002, sig) {
		t.Error("Verify() returned true for wrong secret")
	}
	if signature.Verify(payload, "bksec_tamper", 1700000003, sig) {
		t.Error("Verify() returned true for wrong timestamp")
	}
}

func TestSignatureFormat(t *testing.T) {
	sig := signature.Sign([]byte("test"), "secret", 123)

	if !strings.HasPrefix(sig, "v1=") {
		t.Errorf("signature should start with 'v1=', got %q", sig)
	}

	// v1= prefix (3) + 64 hex chars (SHA256 = 32 bytes = 64 hex)
	if len(sig) != 67 {
		t.Errorf("expected signature length 67, got %d", len(sig))
	}
}

func TestSignRequest_VerifyRequest(t *testing.T) {
	body := []byte(`{"event_type":"spawn_domain","event_data":{"domain":"example.com"}}`)
	req := httptest.NewRequest("POST", "/v1/ingest", nil)

	signature.NewSigner("bksec_shared").SignRequest(req, body)

	v := signature.NewVerifier(0, "bksec_shared")
	if err := v.VerifyRequest(req, body); err != nil {
		t.Fatalf("VerifyRequest: %v", err)
	}
	if err := v.VerifyRequest(req, append(body, ' ')); !errors.Is(err, signature.ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestVerifier_Rotation(t *testing.T) {
	body := []byte(`{}`)
	ts := time.Now().Unix()
	sig := signature.Sign(body, "bksec_old", ts)

	v := signature.NewVerifier(time.Minute, "bksec_new", "bksec_old")
	if err := v.Verify(body, ts, sig); err != nil {
		t.Fatalf("old secret should still verify: %v", err)
	}
}

func TestVerifier_StaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	ts := time.Now().Add(-time.Hour).Unix()
	sig := signature.Sign(body, "bksec_s", ts)

	err := signature.NewVerifier(time.Minute, "bksec_s").Verify(body, ts, sig)
	if !errors.Is(err, signature.ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestVerifier_MissingHeaders(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/ingest", nil)
	err := signature.NewVerifier(0, "bksec_s").VerifyRequest(req, nil)
	if !errors.Is(err, signature.ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}

	req.Header.Set(signature.HeaderSignature, "v1=00")
	req.Header.Set(signature.HeaderTimestamp, "not-a-number")
	err = signature.NewVerifier(0, "bksec_s").VerifyRequest(req, nil)
	if !errors.Is(err, signature.ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}
