// Package connector implements a dynamic media-graph connector: a pipeline
// node exposing any number of sink taps (sink_<n>) and source taps (src_<n>).
//
// Every sink tap gets its own conversion subgraph. Source taps are created
// unlinked and negotiate lazily:
//
//	UNCONFIGURED  no declared format; never linked until Configure
//	CONFIGURED    declared format, no upstream listener claimed it
//	WAITING       declared format, an upstream listener claimed it
//	LINKED        bound to a subgraph output; final
//
// When a format arrives on a sink tap, every CONFIGURED source tap that is
// connected downstream is bound to a fresh output of that sink's subgraph.
// WAITING taps only change when their claimant delivers, and nothing here
// times them out.
//
// # Locking
//
// The connector lock guards the tap registry and the subgraph pool. Each
// source tap has its own lock for its negotiation state. The connector lock
// is never held while a tap lock is taken or while listeners and observers
// run: format arrival copies the source tap list under the connector lock and
// evaluates the copy afterwards, so a listener or host callback may call back
// into the connector without deadlocking.
//
// # Release
//
// Subgraphs are reference counted. A sink tap holds one reference and every
// output granted to a linked source tap holds another. Releasing the last one
// removes the converter from the host.
//
// # Usage
//
//	conn, err := connector.New(bin, component.Dependencies{Logger: logger})
//	if err != nil {
//	    return err
//	}
//	sink, _ := conn.RequestSink()
//	src, _ := conn.RequestSource(caps.MustParse("video/x-h264"))
//	src.Connect(peer)
//
//	sink.Deliver(caps.MustParse("video/x-h264,profile=baseline"))
//	// src is now LINKED to agnosticbin0:src_0
package connector
