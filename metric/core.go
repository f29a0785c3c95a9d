package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the process
const Namespace = "mediaconnector"

// Metrics holds the process-wide metrics every connector and the event
// transport report into. Per-connector tap metrics live with the connector.
type Metrics struct {
	ComponentStatus   *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec
	HealthCheckStatus *prometheus.GaugeVec

	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

func gaugeOpts(subsystem, name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}
}

func counterOpts(subsystem, name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}
}

// NewMetrics creates the core metrics, unregistered
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			gaugeOpts("component", "status",
				"Lifecycle state (0=created, 1=started, 2=stopped, 3=failed, 4=closed)"),
			[]string{"component"}),
		ErrorsTotal: prometheus.NewCounterVec(
			counterOpts("errors", "total",
				"Errors by class (transient=negotiation stall, fatal=structural, invalid=bad request)"),
			[]string{"component", "class"}),
		HealthCheckStatus: prometheus.NewGaugeVec(
			gaugeOpts("health", "status", "Last health check (0=unhealthy, 0.5=degraded, 1=healthy)"),
			[]string{"component"}),

		NATSConnected: prometheus.NewGauge(
			gaugeOpts("nats", "connected", "Event transport connected (0/1)")),
		NATSRTT: prometheus.NewGauge(
			gaugeOpts("nats", "rtt_milliseconds", "Event transport round trip in milliseconds")),
		NATSReconnects: prometheus.NewCounter(
			counterOpts("nats", "reconnects_total", "Event transport reconnections")),
		NATSCircuitBreaker: prometheus.NewGauge(
			gaugeOpts("nats", "circuit_breaker", "Event transport circuit breaker (0=closed, 1=open)")),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ComponentStatus,
		c.ErrorsTotal,
		c.HealthCheckStatus,
		c.NATSConnected,
		c.NATSRTT,
		c.NATSReconnects,
		c.NATSCircuitBreaker,
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RecordComponentStatus sets the lifecycle state gauge of a component
func (c *Metrics) RecordComponentStatus(component string, status int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordError counts one error of the given class
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordHealthStatus sets the health gauge; degraded counts as half healthy
func (c *Metrics) RecordHealthStatus(component string, healthy, degraded bool) {
	v := boolValue(healthy)
	if !healthy && degraded {
		v = 0.5
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(v)
}

// RecordNATSStatus sets the connected gauge
func (c *Metrics) RecordNATSStatus(connected bool) {
	c.NATSConnected.Set(boolValue(connected))
}

// RecordNATSRTT sets the round trip gauge
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect counts one reconnection
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState sets the breaker gauge
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}
