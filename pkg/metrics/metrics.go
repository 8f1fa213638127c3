// Package metrics exposes client-side Prometheus counters. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client's collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	channelTransitions *prometheus.CounterVec
	reconnectAttempts  prometheus.Counter
	framesReceived     *prometheus.CounterVec
	malformedFrames    prometheus.Counter
	framesSent         *prometheus.CounterVec
	renders            prometheus.Counter
	renderFailures     prometheus.Counter
	apiRequests        *prometheus.CounterVec
}

// New creates and registers the client collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		channelTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_channel_transitions_total",
			Help: "Live-update channel state transitions by target state",
		}, []string{"state"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kindred_channel_reconnect_attempts_total",
			Help: "Reconnect timers that fired and started a new dial",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_frames_received_total",
			Help: "Inbound envelopes by type",
		}, []string{"type"}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kindred_frames_malformed_total",
			Help: "Inbound frames dropped because they could not be decoded",
		}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_frames_sent_total",
			Help: "Outbound envelopes by type",
		}, []string{"type"}),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kindred_renders_total",
			Help: "Render passes",
		}),
		renderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kindred_render_failures_total",
			Help: "Render passes that fell back to the error placeholder",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kindred_api_requests_total",
			Help: "REST requests by status class",
		}, []string{"class"}),
	}

	m.registry.MustRegister(
		m.channelTransitions,
		m.reconnectAttempts,
		m.framesReceived,
		m.malformedFrames,
		m.framesSent,
		m.renders,
		m.renderFailures,
		m.apiRequests,
	)
	return m
}

// Registry returns the private registry (for tests and custom exposition)
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordChannelTransition counts a channel state change
func (m *Metrics) RecordChannelTransition(state string) {
	if m == nil {
		return
	}
	m.channelTransitions.WithLabelValues(state).Inc()
}

// RecordReconnectAttempt counts a reconnect timer firing
func (m *Metrics) RecordReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// RecordFrameReceived counts an inbound envelope
func (m *Metrics) RecordFrameReceived(msgType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(msgType).Inc()
}

// RecordMalformedFrame counts a dropped inbound frame
func (m *Metrics) RecordMalformedFrame() {
	if m == nil {
		return
	}
	m.malformedFrames.Inc()
}

// RecordFrameSent counts an outbound envelope
func (m *Metrics) RecordFrameSent(msgType string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(msgType).Inc()
}

// RecordRender counts a render pass
func (m *Metrics) RecordRender() {
	if m == nil {
		return
	}
	m.renders.Inc()
}

// RecordRenderFailure counts a render pass that panicked
func (m *Metrics) RecordRenderFailure() {
	if m == nil {
		return
	}
	m.renderFailures.Inc()
}

// RecordAPIRequest counts a REST request by status class ("2xx", "4xx", ...).
// Status 0 is a transport failure.
func (m *Metrics) RecordAPIRequest(status int) {
	if m == nil {
		return
	}
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.apiRequests.WithLabelValues(class).Inc()
}
