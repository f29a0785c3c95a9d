package connector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mediaconnector/metric"
	"github.com/c360/mediaconnector/pipeline"
	"github.com/c360/mediaconnector/tap"
)

// connectorMetrics are labelled with the connector name so several
// connectors can share a registry. A nil value records nothing.
type connectorMetrics struct {
	taps      *prometheus.GaugeVec
	requests  *prometheus.CounterVec
	links     *prometheus.CounterVec
	announces *prometheus.CounterVec
	subgraphs prometheus.Gauge
}

func newConnectorMetrics(registry *metric.MetricsRegistry, name string) (*connectorMetrics, error) {
	labels := prometheus.Labels{"connector": name}
	m := &connectorMetrics{
		taps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "connector",
			Name:        "taps",
			Help:        "Taps by direction and negotiation state",
			ConstLabels: labels,
		}, []string{"direction", "state"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "connector",
			Name:        "pad_requests_total",
			Help:        "Pad requests by template and result",
			ConstLabels: labels,
		}, []string{"template", "result"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "connector",
			Name:        "link_attempts_total",
			Help:        "Source tap evaluations by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		announces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "connector",
			Name:        "broadcasts_total",
			Help:        "Capability announcements by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		subgraphs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "connector",
			Name:        "subgraphs",
			Help:        "Live conversion subgraphs",
			ConstLabels: labels,
		}),
	}

	service := "connector." + name
	var registered []string
	for _, r := range []struct {
		name string
		fn   func() error
	}{
		{"taps", func() error { return registry.RegisterGaugeVec(service, "taps", m.taps) }},
		{"pad_requests_total", func() error { return registry.RegisterCounterVec(service, "pad_requests_total", m.requests) }},
		{"link_attempts_total", func() error { return registry.RegisterCounterVec(service, "link_attempts_total", m.links) }},
		{"broadcasts_total", func() error { return registry.RegisterCounterVec(service, "broadcasts_total", m.announces) }},
		{"subgraphs", func() error { return registry.RegisterGauge(service, "subgraphs", m.subgraphs) }},
	} {
		if err := r.fn(); err != nil {
			// leave metrics owned by another connector of the same name alone
			for _, name := range registered {
				registry.Unregister(service, name)
			}
			return nil, err
		}
		registered = append(registered, r.name)
	}
	return m, nil
}

func (m *connectorMetrics) request(template string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.requests.WithLabelValues(template, result).Inc()
}

func (m *connectorMetrics) link(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.links.WithLabelValues(outcome).Inc()
}

func (m *connectorMetrics) broadcast(claimed bool) {
	if m == nil {
		return
	}
	outcome := "unclaimed"
	if claimed {
		outcome = "claimed"
	}
	m.announces.WithLabelValues(outcome).Inc()
}

// refreshGauges recounts taps and subgraphs. It takes tap locks, so it must
// run without the connector lock.
func (c *Connector) refreshGauges() {
	m := c.metrics
	if m == nil {
		return
	}

	sinks, _ := c.taps.Len()
	counts := map[tap.State]int{}
	for _, s := range c.taps.Sources() {
		counts[s.State()]++
	}

	m.taps.WithLabelValues(pipeline.DirectionSink.String(), "").Set(float64(sinks))
	for _, st := range []tap.State{tap.Unconfigured, tap.Configured, tap.Waiting, tap.Linked} {
		m.taps.WithLabelValues(pipeline.DirectionSource.String(), st.String()).Set(float64(counts[st]))
	}
	m.subgraphs.Set(float64(c.pool.Len()))
}
