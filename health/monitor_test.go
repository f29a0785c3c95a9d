package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mediaconnector/component"
	"github.com/c360/mediaconnector/metric"
)

func TestMonitor_ChecksAndComponents(t *testing.T) {
	m := NewMonitor()
	comp := &fakeComponent{name: "conn0", health: component.HealthStatus{Healthy: true}}
	m.Register(comp)
	m.UpdateHealthy("nats", "connected")
	assert.Equal(t, 2, m.Count())

	s := m.Check("mediaconnector")
	assert.True(t, s.IsHealthy())
	require.Len(t, s.SubStatuses, 2)
	assert.Equal(t, "conn0", s.SubStatuses[0].Component)
	assert.Equal(t, "nats", s.SubStatuses[1].Component)

	// components are polled, not cached
	comp.outputs = []component.Port{tapPort("src_0", "WAITING", "video/x-h264")}
	assert.True(t, m.Check("mediaconnector").IsDegraded())

	got, ok := m.Get("conn0")
	require.True(t, ok)
	assert.True(t, got.IsDegraded())

	m.Remove("conn0")
	_, ok = m.Get("conn0")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestMonitor_UnhealthyMessageSanitized(t *testing.T) {
	m := NewMonitor()
	m.UpdateUnhealthy("nats", "dial nats://10.0.0.1:4222 refused")

	s, ok := m.Get("nats")
	require.True(t, ok)
	assert.Equal(t, "dial [URL] refused", s.Message)
	assert.False(t, s.Timestamp.IsZero())
}

func TestMonitor_Handler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("nats", "connected")

	rec := httptest.NewRecorder()
	m.Handler("mediaconnector").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var s Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, "mediaconnector", s.Component)
	assert.True(t, s.Healthy)

	m.UpdateUnhealthy("nats", "disconnected")
	rec = httptest.NewRecorder()
	m.Handler("mediaconnector").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMonitor_RecordsHealthGauge(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := NewMonitor()
	m.SetMetrics(registry.CoreMetrics())

	comp := &fakeComponent{name: "conn0", health: component.HealthStatus{Healthy: true}}
	comp.outputs = []component.Port{tapPort("src_0", "WAITING", "video/x-h264")}
	m.Register(comp)
	m.UpdateHealthy("nats", "connected")

	assert.True(t, m.Check("mediaconnector").IsDegraded())

	gauge := registry.CoreMetrics().HealthCheckStatus
	assert.Equal(t, 0.5, testutil.ToFloat64(gauge.WithLabelValues("conn0")))
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge.WithLabelValues("nats")))
	assert.Equal(t, 0.5, testutil.ToFloat64(gauge.WithLabelValues("mediaconnector")))
}
