package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	m := New()
	m.SessionStarted()
	m.SessionStarted()
	m.SessionFinished()
	m.SegmentFailed()
	m.BreakpointSaved(nil)
	m.BreakpointSaved(errors.New("disk full"))
	m.BreakpointSaved(nil)
	m.ReadyBytes(1234)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsFinished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakpointSaves.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakpointSaves.WithLabelValues("error")))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.ReadyBytesGauge))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionFinished()
		m.SegmentFailed()
		m.BreakpointSaved(nil)
		m.ReadyBytes(1)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ReadyBytes(77)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rangedl_ready_bytes 77")
}
