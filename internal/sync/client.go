// Sentinel Kiosk - Offline Check-in Queue and Sync Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sentinel

package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/sentinel/internal/logging"
	"github.com/tomtom215/sentinel/internal/queue"
)

const (
	bulkPath   = "/checkins/bulk"
	healthPath = "/health"

	// maxErrorBodySize caps how much of a failed response is kept for logs.
	maxErrorBodySize = 4 * 1024

	// maxResponseBodySize caps a bulk response. A 100 item batch with one
	// error message per item is far below this.
	maxResponseBodySize = 1 << 20

	// isoMillis matches JavaScript's Date.toISOString.
	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// Client is the backend transport used by the Syncer and Monitor.
type Client interface {
	// BulkUpload posts one batch. A nil error means the backend answered 2xx
	// with a decodable body; the caller inspects Success and Errors.
	BulkUpload(ctx context.Context, events []*queue.Event) (*BulkResponse, error)

	// Health reports whether GET /health answered 200.
	Health(ctx context.Context) error
}

// BulkItem is one check-in on the wire.
type BulkItem struct {
	ID             string `json:"id"`
	SerialNumber   string `json:"serialNumber"`
	Timestamp      string `json:"timestamp"`
	KioskID        string `json:"kioskId"`
	LocalTimestamp int64  `json:"localTimestamp"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// BulkRequest is the body of POST /checkins/bulk.
type BulkRequest struct {
	Checkins []BulkItem `json:"checkins"`
}

// ItemError reports one rejected check-in by id.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// ItemResult is the per-item outcome some backends return instead of errors.
type ItemResult struct {
	SerialNumber string `json:"serialNumber"`
	Timestamp    string `json:"timestamp"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// BulkResponse is the backend's answer to a bulk upload.
type BulkResponse struct {
	Success   bool         `json:"success"`
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Errors    []ItemError  `json:"errors,omitempty"`
	Results   []ItemResult `json:"results,omitempty"`
}

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	// BaseURL is the backend API root without a trailing slash.
	BaseURL string

	APIKey       string
	APIKeyHeader string

	// RequestTimeout bounds one bulk upload.
	RequestTimeout time.Duration

	// ProbeTimeout bounds one health check.
	ProbeTimeout time.Duration

	// MaxBatchesPerSecond paces bulk uploads. Zero disables pacing.
	MaxBatchesPerSecond float64

	// BreakerEnabled wraps bulk uploads in a circuit breaker.
	BreakerEnabled bool

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// HTTPClient talks JSON to the check-in backend.
type HTTPClient struct {
	baseURL        string
	apiKey         string
	apiKeyHeader   string
	requestTimeout time.Duration
	probeTimeout   time.Duration
	client         *http.Client
	limiter        *rate.Limiter
	breaker        *circuitBreaker
}

// NewHTTPClient creates a backend client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "X-Kiosk-API-Key"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-request contexts carry the timeouts.
		httpClient = &http.Client{}
	}

	c := &HTTPClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		apiKeyHeader:   cfg.APIKeyHeader,
		requestTimeout: cfg.RequestTimeout,
		probeTimeout:   cfg.ProbeTimeout,
		client:         httpClient,
	}
	if cfg.MaxBatchesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.MaxBatchesPerSecond), 1)
	}
	if cfg.BreakerEnabled {
		c.breaker = newCircuitBreaker("backend-bulk")
	}
	return c
}

// BulkUpload implements Client.
func (c *HTTPClient) BulkUpload(ctx context.Context, events []*queue.Event) (*BulkResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Code: CodeCanceled, Err: err}
		}
	}
	if c.breaker == nil {
		return c.bulkUpload(ctx, events)
	}
	return c.breaker.execute(func() (*BulkResponse, error) {
		return c.bulkUpload(ctx, events)
	})
}

func (c *HTTPClient) bulkUpload(ctx context.Context, events []*queue.Event) (*BulkResponse, error) {
	body, err := json.Marshal(newBulkRequest(events))
	if err != nil {
		return nil, fmt.Errorf("encode bulk request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+bulkPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out BulkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&out); err != nil {
		return nil, &NetworkError{StatusCode: 0, Code: CodeDecode, Err: err}
	}
	return &out, nil
}

// Health implements Client. It bypasses the circuit breaker so that
// reachability keeps being measured while the breaker is open.
func (c *HTTPClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, http.NoBody)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

	if resp.StatusCode != http.StatusOK {
		return &NetworkError{StatusCode: resp.StatusCode}
	}
	return nil
}

// BreakerState returns the circuit breaker state name, or "disabled".
func (c *HTTPClient) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.state()
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set(c.apiKeyHeader, c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func newBulkRequest(events []*queue.Event) BulkRequest {
	items := make([]BulkItem, 0, len(events))
	for _, ev := range events {
		items = append(items, BulkItem{
			ID:             ev.ID,
			SerialNumber:   ev.SerialNumber,
			Timestamp:      formatTimestamp(ev.Timestamp),
			KioskID:        ev.KioskID,
			LocalTimestamp: ev.LocalTimestamp,
			SequenceNumber: ev.SequenceNumber,
		})
	}
	return BulkRequest{Checkins: items}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	// The body stays in the log; the error reaches the kiosk UI.
	body := readBodyForError(resp.Body)
	event := logging.Warn().Int("status", resp.StatusCode)
	if resp.Request != nil && resp.Request.URL != nil {
		event = event.Str("path", resp.Request.URL.Path)
	}
	event.Str("body", strings.TrimSpace(string(body))).Msg("Backend returned error status")

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w (status %d)", ErrAuthentication, resp.StatusCode)
	}
	return &NetworkError{StatusCode: resp.StatusCode}
}

func classifyTransportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return &NetworkError{Code: CodeCanceled, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &NetworkError{Code: CodeTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &NetworkError{Code: CodeTimeout, Err: err}
	default:
		return &NetworkError{Code: CodeConnection, Err: err}
	}
}

func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return nil
	}
	return body
}

var _ Client = (*HTTPClient)(nil)
