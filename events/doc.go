// Package events publishes tap lifecycle notifications.
//
// A connector emits an Event when a tap is created, changes negotiation
// state, sees a format arrive, or is released. Events go through a Publisher,
// a small worker pool with a bounded queue, to a Sink. The NATS sink encodes
// each event as JSON on
//
//	<prefix>.<connector>.<tap>
//
// so subscribers can follow one tap or a whole connector with wildcards.
//
// Delivery is best effort. Publish never blocks the caller; a full queue drops
// the event and increments the dropped counter.
package events
