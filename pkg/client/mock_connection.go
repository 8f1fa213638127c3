package client

import (
	"context"
	"errors"
	"sync"
)

// MockDialer is a test implementation of Dialer. Each Dial consumes the
// next queued result; with nothing queued it fails.
type MockDialer struct {
	mu      sync.Mutex
	results []mockDialResult
	tokens  []string
}

type mockDialResult struct {
	transport *MockTransport
	err       error
}

// NewMockDialer creates a dialer with no queued results
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// QueueTransport makes the next Dial succeed with t
func (d *MockDialer) QueueTransport(t *MockTransport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, mockDialResult{transport: t})
}

// QueueError makes the next Dial fail with err
func (d *MockDialer) QueueError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, mockDialResult{err: err})
}

// Dial returns the next queued result
func (d *MockDialer) Dial(_ context.Context, token string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tokens = append(d.tokens, token)
	if len(d.results) == 0 {
		return nil, errors.New("mock dialer: no result queued")
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.transport, nil
}

// Dials returns the number of Dial calls so far
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

// Tokens returns the token passed to each Dial call
func (d *MockDialer) Tokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}

// MockTransport is a test implementation of Transport. Tests drive inbound
// traffic with Deliver and Drop and inspect outbound frames with Sent.
type MockTransport struct {
	mu      sync.Mutex
	handler TransportHandler
	sent    [][]byte
	closed  bool
	sendErr error
}

// NewMockTransport creates an idle transport
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Run records the handler
func (t *MockTransport) Run(handler TransportHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Send records an outbound frame
func (t *MockTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errTransportClosed
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

// Close marks the transport closed
func (t *MockTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// SetSendError makes Send fail with err
func (t *MockTransport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// Deliver simulates an inbound frame
func (t *MockTransport) Deliver(data []byte) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h.HandleFrame(data)
	}
}

// Drop simulates the server or network closing the connection
func (t *MockTransport) Drop(err error) {
	t.mu.Lock()
	h := t.handler
	t.closed = true
	t.mu.Unlock()
	if h != nil {
		h.HandleClose(err)
	}
}

// Sent returns the frames sent so far
func (t *MockTransport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// IsClosed reports whether Close or Drop was called
func (t *MockTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Running reports whether Run was called
func (t *MockTransport) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler != nil
}
