package metric

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mediaconnector/errors"
)

func gathered(t *testing.T, registry *MetricsRegistry, name string) bool {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
	assert.Empty(t, registry.Registered("connector0"))
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("connector0", "test_counter", counter))
	counter.Inc()

	assert.True(t, gathered(t, registry, "test_counter"))
}

func TestMetricsRegistry_RegisterVectors(t *testing.T) {
	registry := NewMetricsRegistry()

	taps := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "test_taps",
		Help: "Taps by state",
	}, []string{"state"})
	links := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_links_total",
		Help: "Link attempts",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_latency_seconds",
		Help:    "Latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	require.NoError(t, registry.RegisterGaugeVec("connector0", "taps", taps))
	require.NoError(t, registry.RegisterCounterVec("connector0", "links", links))
	require.NoError(t, registry.RegisterHistogramVec("connector0", "latency", latency))

	taps.WithLabelValues("LINKED").Set(2)
	links.WithLabelValues("linked").Inc()
	latency.WithLabelValues("announce").Observe(0.01)

	assert.True(t, gathered(t, registry, "test_taps"))
	assert.True(t, gathered(t, registry, "test_links_total"))
	assert.True(t, gathered(t, registry, "test_latency_seconds"))
	assert.Equal(t, 2.0, testutil.ToFloat64(taps.WithLabelValues("LINKED")))
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})

	require.NoError(t, registry.RegisterCounter("connector0", "duplicate_counter", counter1))

	err := registry.RegisterCounter("connector0", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "already registered")

	// same collector name from another service is a prometheus conflict
	err = registry.RegisterCounter("connector1", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "unregister_gauge", Help: "g"})
	require.NoError(t, registry.RegisterGauge("connector0", "g", gauge))

	assert.True(t, registry.Unregister("connector0", "g"))
	assert.False(t, registry.Unregister("connector0", "g"))
	assert.False(t, gathered(t, registry, "unregister_gauge"))

	// can register again after removal
	assert.NoError(t, registry.RegisterGauge("connector0", "g", gauge))
}

func TestMetricsRegistry_UnregisterService(t *testing.T) {
	registry := NewMetricsRegistry()

	for i := range 3 {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("svc_counter_%d", i),
			Help: "c",
		})
		require.NoError(t, registry.RegisterCounter("connector0", fmt.Sprintf("c%d", i), c))
	}
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "other_counter", Help: "c"})
	require.NoError(t, registry.RegisterCounter("connector01", "c", other))

	assert.Equal(t, []string{"c0", "c1", "c2"}, registry.Registered("connector0"))
	assert.Equal(t, 3, registry.UnregisterService("connector0"))
	assert.Empty(t, registry.Registered("connector0"))
	assert.Equal(t, []string{"c"}, registry.Registered("connector01"))
	assert.True(t, registry.Unregister("connector01", "c"))
}

func TestMetricsRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "c",
			})
			errs <- registry.RegisterCounter("connector0", fmt.Sprintf("c%d", id), c)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestCoreMetrics_Record(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordHealthStatus("connector0", true, false)
	m.RecordHealthStatus("connector1", false, true)
	m.RecordHealthStatus("connector2", false, false)
	m.RecordError("connector0", "fatal")
	m.RecordError("connector0", "fatal")
	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()
	m.RecordCircuitBreakerState(1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("connector0")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("connector1")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HealthCheckStatus.WithLabelValues("connector2")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("connector0", "fatal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSCircuitBreaker))
}

func family(t *testing.T, registry *MetricsRegistry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func TestCoreMetrics_Families(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()
	m.RecordComponentStatus("connector0", 1)
	m.RecordError("connector0", "transient")

	status := family(t, registry, "mediaconnector_component_status")
	assert.Equal(t, dto.MetricType_GAUGE, status.GetType())
	require.Len(t, status.GetMetric(), 1)
	assert.Equal(t, 1.0, status.GetMetric()[0].GetGauge().GetValue())
	labels := status.GetMetric()[0].GetLabel()
	require.Len(t, labels, 1)
	assert.Equal(t, "component", labels[0].GetName())
	assert.Equal(t, "connector0", labels[0].GetValue())

	errs := family(t, registry, "mediaconnector_errors_total")
	assert.Equal(t, dto.MetricType_COUNTER, errs.GetType())
	assert.Equal(t, 1.0, errs.GetMetric()[0].GetCounter().GetValue())
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordHealthStatus("connector0", true, false)
	server := NewServer(0, "", registry)
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mediaconnector_health_status")

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())

	server.SetHealthHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_StartWithoutRegistry(t *testing.T) {
	server := NewServer(19091, "/metrics", nil)
	err := server.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.NoError(t, server.Stop(context.Background()))
}

func TestServer_ExtraRoutes(t *testing.T) {
	server := NewServer(0, "", NewMetricsRegistry())
	server.Handle("/taps", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"taps":[]}`))
	}))

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/taps", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"taps":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "OK", rec.Body.String())
}
