// Package pipeline defines the collaborators the connector drives: the host
// pipeline it lives in, the converter nodes it spawns, and the downstream peers
// that negotiate formats on its source taps.
//
// The connector never schedules buffers or changes element states itself. It
// asks the host whether it is active, adds children, exposes pads, and binds a
// pad to a converter connection. Everything else belongs to the execution
// engine behind these interfaces.
package pipeline

import (
	"fmt"

	"github.com/c360/mediaconnector/caps"
)

// State is the execution state of a pipeline element
type State int

const (
	// StateNull is the initial state, no resources allocated
	StateNull State = iota
	// StateReady has resources allocated but no data flow
	StateReady
	// StatePaused is prerolled and ready to flow
	StatePaused
	// StatePlaying is flowing
	StatePlaying
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// MinimalActive is the lowest state at which newly exposed pads are activated
const MinimalActive = StatePaused

// Activation summarizes the host state for pad activation decisions
type Activation int

const (
	// BelowActive means pads are exposed inactive and activated later by the host
	BelowActive Activation = iota
	// ActiveOrPending means current, pending, or target state is at least MinimalActive
	ActiveOrPending
)

// String returns the activation name
func (a Activation) String() string {
	if a == ActiveOrPending {
		return "active-or-pending"
	}
	return "below-active"
}

// ActivationFor derives the activation from the three state slots a host tracks
func ActivationFor(current, pending, target State) Activation {
	if current >= MinimalActive || pending >= MinimalActive || target >= MinimalActive {
		return ActiveOrPending
	}
	return BelowActive
}

// Direction of data flow through a pad
type Direction int

const (
	// DirectionSink pads consume data
	DirectionSink Direction = iota
	// DirectionSource pads produce data
	DirectionSource
)

// String returns the direction name
func (d Direction) String() string {
	if d == DirectionSource {
		return "source"
	}
	return "sink"
}

// MarshalText encodes the direction as "sink" or "source"
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts "sink" or "source"
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "sink":
		*d = DirectionSink
	case "source":
		*d = DirectionSource
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Node is anything the host can contain
type Node interface {
	Name() string
}

// Pad is the host's view of a connector tap
type Pad interface {
	Name() string
	Direction() Direction
	Active() bool
	SetActive(active bool)
}

// Handle identifies one connection point on a converter
type Handle interface {
	Name() string
	Owner() Converter
}

// Converter is an opaque format-conversion node with one input and any number
// of requested outputs.
type Converter interface {
	Node
	Input() Handle
	RequestOutput() (Handle, error)
	ReleaseOutput(h Handle) error
	Outputs() int
}

// Host is the pipeline that owns the connector
type Host interface {
	ActivationState() Activation
	AddChild(n Node) error
	RemoveChild(n Node) error
	Expose(p Pad) error
	Withdraw(p Pad) error
	// Bind sets target as the producer behind pad. False means the target could
	// not be bound and nothing changed.
	Bind(p Pad, target Handle) bool
	Unbind(p Pad)
}

// Peer is the downstream element linked to a source tap
type Peer interface {
	Name() string
	AllowedCaps() caps.Caps
}
