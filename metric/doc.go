// Package metric provides Prometheus-based metrics collection and an HTTP
// server exposing them.
//
// MetricsRegistry wraps a private prometheus.Registry. It registers the
// process-level Metrics (component status, error classes, health, NATS
// connection) on creation and lets components add their own collectors,
// keyed by service name so a second registration of the same metric is
// reported instead of panicking:
//
//	registry := metric.NewMetricsRegistry()
//	taps := prometheus.NewGaugeVec(opts, []string{"direction", "state"})
//	if err := registry.RegisterGaugeVec("connector0", "taps", taps); err != nil {
//		return err
//	}
//
// Server serves /metrics through promhttp, a /health endpoint that can be
// replaced, and any extra read-only routes:
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	server.SetHealthHandler(healthHandler)
//	server.Handle("/taps", tapsHandler)
//	go func() {
//		if err := server.Start(); err != nil {
//			logger.Error("metrics server failed", "error", err)
//		}
//	}()
//	defer server.Stop(shutdownCtx)
package metric
