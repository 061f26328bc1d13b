package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCounters(t *testing.T) {
	m := New()

	m.ObserveGateway("chat", "ok", 120*time.Millisecond)
	m.ObserveGateway("chat", "ok", 80*time.Millisecond)
	m.ObserveGateway("process", "error", time.Second)
	m.ObserveRecording("too_short")
	m.ObserveMessage("bot")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("chat", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayRequests.WithLabelValues("process", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordings.WithLabelValues("too_short")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("bot")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveGateway("health", "ok", time.Millisecond)
	m.ObserveRecording("submitted")
	m.ObserveMessage("user")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveMessage("user")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `voicechat_transcript_messages_total{sender="user"} 1`)
}
