// Package health reports the health of connectors and the daemon around them.
//
// # Health States
//
//   - healthy: operating normally
//   - degraded: working, but some source tap is waiting for an upstream producer
//   - unhealthy: a component reports itself unhealthy, or NATS is down when required
//
// # Core Components
//
// Status: a health state with message, timestamp, optional metrics and
// sub-statuses. A connector status carries one sub-status per tap.
//
// Monitor: tracks registered components, polled on every Check, next to plain
// named checks such as the NATS connection. Handler serves the aggregate as
// JSON for the metrics server's /health route.
//
// # Usage
//
//	monitor := health.NewMonitor()
//	monitor.Register(conn)
//	monitor.UpdateHealthy("nats", "connected")
//
//	status := monitor.Check("mediaconnector")
//	if status.IsDegraded() {
//	    log.Println(status.Message)
//	}
//
// Messages that come from errors are sanitized: URLs, IP addresses, ports and
// credential-looking pairs are replaced before they reach an endpoint.
package health
