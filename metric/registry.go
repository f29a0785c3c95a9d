package metric

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/mediaconnector/errors"
)

type metricKey struct {
	service string
	name    string
}

func (k metricKey) String() string {
	return k.service + "." + k.name
}

// MetricsRegistry owns a private Prometheus registry. Components register
// their collectors under a service name (usually the connector name) so they
// can be removed together when the component goes away.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	core               *Metrics

	mu         sync.RWMutex
	registered map[metricKey]prometheus.Collector
}

// NewMetricsRegistry creates a registry with the core metrics and the Go and
// process collectors already registered
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		core:               NewMetrics(),
		registered:         make(map[metricKey]prometheus.Collector),
	}
	r.prometheusRegistry.MustRegister(r.core.collectors()...)
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the process-wide metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.core
}

// RegisterCounter registers a counter for a service
func (r *MetricsRegistry) RegisterCounter(service, name string, c prometheus.Counter) error {
	return r.Register(service, name, c)
}

// RegisterGauge registers a gauge for a service
func (r *MetricsRegistry) RegisterGauge(service, name string, g prometheus.Gauge) error {
	return r.Register(service, name, g)
}

// RegisterCounterVec registers a counter vector for a service
func (r *MetricsRegistry) RegisterCounterVec(service, name string, cv *prometheus.CounterVec) error {
	return r.Register(service, name, cv)
}

// RegisterGaugeVec registers a gauge vector for a service
func (r *MetricsRegistry) RegisterGaugeVec(service, name string, gv *prometheus.GaugeVec) error {
	return r.Register(service, name, gv)
}

// RegisterHistogramVec registers a histogram vector for a service
func (r *MetricsRegistry) RegisterHistogramVec(service, name string, hv *prometheus.HistogramVec) error {
	return r.Register(service, name, hv)
}

// Register adds a collector under service and name. A name already taken by
// the service, or a collector Prometheus already knows, is an invalid
// registration; any other Prometheus failure is fatal.
func (r *MetricsRegistry) Register(service, name string, c prometheus.Collector) error {
	key := metricKey{service, name}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered", key),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if stderrors.As(err, &already) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register",
				fmt.Sprintf("prometheus conflict for metric %s", key))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", "register collector")
	}

	r.registered[key] = c
	return nil
}

// Unregister removes one metric of a service
func (r *MetricsRegistry) Unregister(service, name string) bool {
	key := metricKey{service, name}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(key)
}

// UnregisterService removes every metric of a service and returns how many
// were removed
func (r *MetricsRegistry) UnregisterService(service string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key := range r.registered {
		if key.service == service && r.unregisterLocked(key) {
			removed++
		}
	}
	return removed
}

func (r *MetricsRegistry) unregisterLocked(key metricKey) bool {
	c, ok := r.registered[key]
	if !ok || !r.prometheusRegistry.Unregister(c) {
		return false
	}
	delete(r.registered, key)
	return true
}

// Registered lists the metric names of a service, sorted
func (r *MetricsRegistry) Registered(service string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for key := range r.registered {
		if key.service == service {
			names = append(names, key.name)
		}
	}
	sort.Strings(names)
	return names
}
