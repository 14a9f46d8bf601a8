// Package posthog delivers events to the PostHog capture API, one HTTP request
// per event so each delivery succeeds or fails on its own.
package posthog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"beacon/internal/queue"
	"beacon/pkg/platform/sentinel"
)

// DefaultHost is PostHog's cloud ingestion host.
const DefaultHost = "https://app.posthog.com"

const capturePath = "/capture/"

// Client is a sink.Sink and sink.Identifier for PostHog.
type Client struct {
	apiKey string
	host   string
	http   *http.Client

	mu         sync.RWMutex
	distinctID string
}

// Option configures a Client.
type Option func(*Client)

// WithHost overrides DefaultHost.
func WithHost(host string) Option {
	return func(c *Client) {
		c.host = strings.TrimRight(host, "/")
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http = &http.Client{Timeout: d}
		}
	}
}

// New creates a Client for the project identified by apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("posthog api key is required")
	}
	c := &Client{
		apiKey: apiKey,
		host:   DefaultHost,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Host returns the ingestion host, suitable for reachability probes.
func (c *Client) Host() string {
	return c.host
}

// Identify sets the distinct ID attached to subsequent captures. It does not
// touch the network.
func (c *Client) Identify(_ context.Context, distinctID string) error {
	if distinctID == "" {
		return fmt.Errorf("distinct id is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.distinctID = distinctID
	return nil
}

type captureRequest struct {
	APIKey     string         `json:"api_key"`
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties"`
	Timestamp  string         `json:"timestamp,omitempty"`
}

// Deliver posts one event. The event's deviceTime property, when present, is
// sent as the capture timestamp so replayed events keep their occurrence time.
func (c *Client) Deliver(ctx context.Context, event string, props map[string]any) error {
	c.mu.RLock()
	distinctID := c.distinctID
	c.mu.RUnlock()
	if distinctID == "" {
		return fmt.Errorf("posthog capture before identify: %w", sentinel.ErrInvalidState)
	}

	body := captureRequest{
		APIKey:     c.apiKey,
		Event:      event,
		DistinctID: distinctID,
		Properties: props,
	}
	if ts, ok := props[queue.DeviceTimeProperty].(string); ok {
		body.Timestamp = ts
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal capture: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+capturePath, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posthog capture: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("posthog capture: unexpected status %d", resp.StatusCode)
	}
	return nil
}
