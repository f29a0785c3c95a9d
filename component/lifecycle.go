package component

import (
	"context"
	"time"
)

// State is where a component is in its lifecycle. A stopped component may be
// started again; a closed one may not.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateStopped
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StateCreated: "created",
	StateStarted: "started",
	StateStopped: "stopped",
	StateFailed:  "failed",
	StateClosed:  "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Running reports whether the component is doing background work
func (s State) Running() bool {
	return s == StateStarted
}

// LifecycleComponent is a component with background work, such as event
// delivery, that must be started before use and stopped within a deadline.
type LifecycleComponent interface {
	Discoverable
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// AsLifecycleComponent reports whether comp has a lifecycle
func AsLifecycleComponent(comp Discoverable) (LifecycleComponent, bool) {
	lc, ok := comp.(LifecycleComponent)
	return lc, ok
}
