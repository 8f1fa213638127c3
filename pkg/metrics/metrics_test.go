package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordChannelTransition("open")
	m.RecordReconnectAttempt()
	m.RecordFrameReceived("typing")
	m.RecordMalformedFrame()
	m.RecordFrameSent("join_room")
	m.RecordRender()
	m.RecordRenderFailure()
	m.RecordAPIRequest(200)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()

	m.RecordChannelTransition("open")
	m.RecordChannelTransition("open")
	m.RecordFrameReceived("new_message")
	m.RecordMalformedFrame()
	m.RecordAPIRequest(201)
	m.RecordAPIRequest(404)
	m.RecordAPIRequest(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.channelTransitions.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesReceived.WithLabelValues("new_message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.malformedFrames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("error")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RecordRender()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kindred_renders_total 1")
}
