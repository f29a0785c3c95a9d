// Package component provides the contract shared by every node that the
// management layer inspects at runtime.
//
// # Overview
//
// A component describes itself through Discoverable: static Metadata, the
// connection points it currently exposes as Ports, a HealthStatus snapshot and
// FlowMetrics. Components with background work also implement
// LifecycleComponent so the process can start and stop them in order.
//
// # Ports
//
// Ports carry a Portable config that says what the port is bound to:
//
//	component.Port{
//		Name:      "src_0",
//		Direction: component.DirectionOutput,
//		Config:    component.TapPort{Connector: "connector0", Tap: "src_0", State: "WAITING"},
//	}
//
// Port marshals its config with a type tag so the concrete Portable survives
// a JSON round trip.
//
// # Dependencies
//
// Components receive their collaborators through Dependencies rather than
// individual constructor arguments. Every field is optional:
//
//	deps := component.Dependencies{
//		NATSClient:      client,   // tap events, nil disables publishing
//		MetricsRegistry: registry, // nil disables metrics
//		Logger:          logger,   // nil falls back to slog.Default()
//	}
//	logger := deps.GetLoggerWithComponent("connector0")
package component
