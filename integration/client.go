package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/signature"
)

// IngestPath is the collector route that accepts signed producer events.
const IngestPath = "/v1/ingest"

// Client posts signed events to a remote collector. The collector
// attributes them to the server-side origin, so the origin argument of
// TrackFrom is not sent.
type Client struct {
	endpoint string
	signer   *signature.Signer
	http     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a Client for the collector at baseURL signing with secret.
func NewClient(baseURL, secret string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimRight(baseURL, "/") + IngestPath,
		signer:   signature.NewSigner(secret),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ingestRequest struct {
	EventType string `json:"event_type"`
	EventData any    `json:"event_data,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
}

type ingestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TrackFrom implements Tracker.
func (c *Client) TrackFrom(ctx context.Context, _ beacon.Origin, eventType string, data any, pageURL string) (bool, error) {
	body, err := json.Marshal(ingestRequest{EventType: eventType, EventData: data, PageURL: pageURL})
	if err != nil {
		return false, fmt.Errorf("integration: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("integration: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.signer.SignRequest(req, body)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("integration: post event: %w", err)
	}
	defer resp.Body.Close()

	var out ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && resp.StatusCode == http.StatusOK {
		return false, fmt.Errorf("integration: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("integration: collector returned %d: %s", resp.StatusCode, out.Message)
	}
	return out.Success, nil
}
