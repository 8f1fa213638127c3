// Package api is the REST gateway client. Every call carries the base
// endpoint prefix, a JSON content type and the bearer token when one is set.
// Calls are never retried.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTimeout bounds a single request when the caller's context has no deadline
	DefaultTimeout = 15 * time.Second

	fallbackMessage    = "Request failed"
	unparsableMessage  = "Network error"
	maxErrorBodyLength = 64 * 1024
)

// RequestError is returned for any response with a non-success status
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// StatusRecorder observes the status of completed requests (0 for transport failures)
type StatusRecorder interface {
	RecordAPIRequest(status int)
}

// Client is the authenticated REST client
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
	recorder   StatusRecorder

	mu    sync.RWMutex
	token string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets a logger for request diagnostics
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRecorder attaches a request status recorder
func WithRecorder(r StatusRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// New creates a client for the API rooted at baseURL (e.g. "http://localhost:8080/api")
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets the bearer token; an empty token sends unauthenticated requests
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func (c *Client) record(status int) {
	if c.recorder != nil {
		c.recorder.RecordAPIRequest(status)
	}
}

// Do performs one request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded JSON response.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(0)
		c.logf("%s %s [%s] failed: %v", method, path, requestID, err)
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	c.record(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := decodeRequestError(resp)
		c.logf("%s %s [%s] -> %d: %s", method, path, requestID, resp.StatusCode, reqErr.Message)
		return reqErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeRequestError extracts the server's "error" field. A body that parses
// without one yields the generic message; a missing or unparsable body yields
// the network message.
func decodeRequestError(resp *http.Response) *RequestError {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return &RequestError{Status: resp.StatusCode, Message: unparsableMessage}
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return &RequestError{Status: resp.StatusCode, Message: unparsableMessage}
	}
	if body.Error == "" {
		return &RequestError{Status: resp.StatusCode, Message: fallbackMessage}
	}
	return &RequestError{Status: resp.StatusCode, Message: body.Error}
}
