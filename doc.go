// Package mediaconnector provides a dynamic connector for media pipelines:
// an element that exposes sink and source taps on request, puts a conversion
// subgraph behind every sink tap and links source taps to those subgraphs
// once a format actually shows up.
//
// # Philosophy: Lazy Negotiation
//
// A source tap does not know its producer when it is requested. It may declare
// the format it wants, and upstream listeners are asked whether they can
// produce it. Linking waits until a format arrives on some sink tap, so no
// converter output is requested for a tap that will never carry data.
//
// The connector MUST NOT:
//   - Hold its own lock while listeners, observers or host callbacks run
//   - Reuse a tap name after the tap is released
//   - Remove a subgraph while a sink tap or a linked source tap still uses it
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            Host pipeline            │  Expose, withdraw, bind
//	│   (state, children, exposed pads)   │  Activation state
//	└─────────────────────────────────────┘
//	           ↑ exposes taps on
//	┌─────────────────────────────────────┐
//	│             Connector               │  sink_<n> / src_<n> requests
//	│   (tap registry, subgraph pool)     │  Format arrival handling
//	└─────────────────────────────────────┘
//	     ↓ one per sink         ↓ announces declared formats
//	┌───────────────────┐  ┌──────────────────────┐
//	│ Conversion        │  │ Capability broadcast │
//	│ subgraph          │  │ (first claimant wins)│
//	└───────────────────┘  └──────────────────────┘
//
// # Source Tap States
//
//	UNCONFIGURED ──declare, nobody claims──▶ CONFIGURED ──format arrives──▶ LINKED
//	      │                                                                   ▲
//	      └──────declare, a listener claims──▶ WAITING                        │
//	      └──────declare, a subgraph already carries it (match_existing)──────┘
//
// LINKED is final. A WAITING tap is left for the upstream producer that
// claimed its format; the connector does not link it.
//
// # Package Structure
//
// Core:
//   - caps: Media format descriptions, intersection and subset checks
//   - pipeline: Host, pad and converter contracts plus an in-memory bin
//   - tap: Sink and source taps, their state machine and the name registry
//   - converter: Reference counted conversion subgraphs
//   - broadcast: Ordered capability listeners
//   - connector: Tap requests, negotiation and release
//
// Infrastructure:
//   - component: Discoverable interface, ports and dependencies
//   - config: JSON/YAML configuration with environment overrides
//   - errors: Transient, invalid and fatal error classes
//   - events: Tap lifecycle events delivered by a worker pool
//   - health: Health status derived from connector taps
//   - metric: Prometheus registry, core metrics and HTTP server
//   - natsclient: NATS connection with circuit breaker
//   - pkg/retry: Backoff for transient failures
//   - testutil: Recording listeners and event sinks for tests
//
// # Quick Start
//
//	bin := pipeline.NewBin("pipeline0")
//	conn, err := connector.New(bin, component.Dependencies{Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	sink, _ := conn.RequestSink()
//	src, _ := conn.RequestSource(caps.MustParse("video/x-h264"))
//	src.Connect(pipeline.NewStaticPeer("decoder", caps.Any()))
//
//	sink.Deliver(caps.MustParse("video/x-h264,profile=baseline"))
//	// src is now LINKED to agnosticbin0:src_0
//
// # Command
//
// cmd/mediaconnector runs a connector on an in-memory pipeline, requests the
// taps described under demo in the configuration, prints a snapshot and, unless
// --once is given, keeps serving /metrics and /health until interrupted.
// See configs/demo.yaml.
package mediaconnector
