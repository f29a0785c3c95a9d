// Package tap holds the connection points a connector exposes: sink taps that
// feed a converter, and source taps that negotiate their producer lazily.
package tap

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/errors"
	"github.com/c360/mediaconnector/pipeline"
)

// Name prefixes. Tap names are <prefix><n> with n counted per direction.
const (
	SinkPrefix   = "sink_"
	SourcePrefix = "src_"
)

// State is the negotiation state of a source tap
type State int

const (
	// Unconfigured taps have no declared format and no link attempt yet
	Unconfigured State = iota
	// Configured taps declared a format nobody upstream claimed; a converter will transcode
	Configured
	// Waiting taps declared a format an upstream listener claimed
	Waiting
	// Linked taps have a real producer. Terminal.
	Linked
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Unconfigured:
		return "UNCONFIGURED"
	case Configured:
		return "CONFIGURED"
	case Waiting:
		return "WAITING"
	case Linked:
		return "LINKED"
	default:
		return "UNKNOWN"
	}
}

// Observer is notified when a format arrives on a sink tap
type Observer func(s *Sink, c caps.Caps)

// Sink is an input tap ghosting a converter's input
type Sink struct {
	name   string
	input  pipeline.Handle
	active atomic.Bool

	mu        sync.Mutex
	observers []Observer
	current   caps.Caps
}

// Name implements pipeline.Pad
func (s *Sink) Name() string {
	return s.name
}

// Direction implements pipeline.Pad
func (s *Sink) Direction() pipeline.Direction {
	return pipeline.DirectionSink
}

// Active implements pipeline.Pad
func (s *Sink) Active() bool {
	return s.active.Load()
}

// SetActive implements pipeline.Pad
func (s *Sink) SetActive(active bool) {
	s.active.Store(active)
}

// Input returns the converter input this tap is bound to
func (s *Sink) Input() pipeline.Handle {
	return s.input
}

// Observe adds a format-arrival observer
func (s *Sink) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Current returns the last format delivered on the tap
func (s *Sink) Current() caps.Caps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Deliver is called by the pipeline thread when a format event crosses the
// tap. Observers run synchronously on the calling goroutine, without the tap
// lock held.
func (s *Sink) Deliver(c caps.Caps) {
	s.mu.Lock()
	s.current = c
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(s, c)
	}
}

// SourceState is the mutable negotiation state of a source tap. It is only
// reachable through Source.Locked while the tap mutex is held.
type SourceState struct {
	State  State
	Target pipeline.Handle

	// Released is set once the tap has been given back; negotiation skips it
	Released bool

	declared caps.Caps
	peer     pipeline.Peer
}

// Declared returns the declared format; empty when none was declared
func (ss *SourceState) Declared() caps.Caps {
	return ss.declared
}

// HasDeclared reports whether a format was declared
func (ss *SourceState) HasDeclared() bool {
	return !ss.declared.IsEmpty()
}

// Peer returns the downstream peer, nil when not connected
func (ss *SourceState) Peer() pipeline.Peer {
	return ss.peer
}

// Source is an output tap. It starts without a producer and is bound to a
// converter output once negotiation succeeds.
type Source struct {
	name   string
	active atomic.Bool

	mu   sync.Mutex
	data SourceState
}

// Name implements pipeline.Pad
func (s *Source) Name() string {
	return s.name
}

// Direction implements pipeline.Pad
func (s *Source) Direction() pipeline.Direction {
	return pipeline.DirectionSource
}

// Active implements pipeline.Pad
func (s *Source) Active() bool {
	return s.active.Load()
}

// SetActive implements pipeline.Pad
func (s *Source) SetActive(active bool) {
	s.active.Store(active)
}

// Locked runs fn with the tap mutex held. fn must not retain the pointer.
func (s *Source) Locked(fn func(ss *SourceState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.data)
}

// State returns the current negotiation state
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.State
}

// Declared returns the declared format; empty when none was declared
func (s *Source) Declared() caps.Caps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.declared
}

// Target returns the bound producer, nil before LINKED
func (s *Source) Target() pipeline.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Target
}

// Declare sets the declared format. A format can be declared once, and only
// before the tap is linked.
func (s *Source) Declare(c caps.Caps) error {
	if c.IsEmpty() {
		return errors.WrapInvalid(errors.ErrInvalidCaps, "Source", "Declare", "empty caps")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.State == Linked {
		return errors.WrapInvalid(errors.ErrAlreadyLinked, "Source", "Declare", s.name)
	}
	if s.data.HasDeclared() {
		return errors.WrapInvalid(errors.ErrAlreadyDeclared, "Source", "Declare", s.name)
	}
	s.data.declared = c
	return nil
}

// Connect attaches the downstream peer
func (s *Source) Connect(peer pipeline.Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.peer = peer
}

// Disconnect detaches the downstream peer
func (s *Source) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.peer = nil
}

// IsConnected reports whether a downstream peer is attached
func (s *Source) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.peer != nil
}

// String returns the tap name with its state
func (s *Source) String() string {
	return fmt.Sprintf("%s(%s)", s.name, s.State())
}
