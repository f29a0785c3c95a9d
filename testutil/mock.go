// Package testutil provides shared fakes for connector tests
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/events"
)

// RecordingListener is a broadcast.Listener that claims formats matching its
// claim list and records every announcement.
type RecordingListener struct {
	mu     sync.Mutex
	claims []caps.Caps
	seen   []caps.Caps

	// OnAnnounce runs after recording, without the listener lock. It may call
	// back into the connector.
	OnAnnounce func(c caps.Caps)
}

// NewRecordingListener claims any announced format that is a subset of one of claims
func NewRecordingListener(claims ...caps.Caps) *RecordingListener {
	return &RecordingListener{claims: claims}
}

// OnCapabilityAnnounced implements broadcast.Listener
func (l *RecordingListener) OnCapabilityAnnounced(c caps.Caps) bool {
	l.mu.Lock()
	l.seen = append(l.seen, c)
	claim := false
	for _, want := range l.claims {
		if c.IsSubsetOf(want) {
			claim = true
			break
		}
	}
	hook := l.OnAnnounce
	l.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return claim
}

// Seen returns announcements in arrival order
func (l *RecordingListener) Seen() []caps.Caps {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]caps.Caps, len(l.seen))
	copy(out, l.seen)
	return out
}

// RecordingSink is an events.Sink that keeps every delivered event
type RecordingSink struct {
	mu     sync.Mutex
	events []events.Event
	signal chan struct{}

	// Err, when set, is returned from every delivery
	Err error
}

// NewRecordingSink creates an empty sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{signal: make(chan struct{}, 1)}
}

// Deliver implements events.Sink
func (s *RecordingSink) Deliver(_ context.Context, e events.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	err := s.Err
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return err
}

// Events returns delivered events in order
func (s *RecordingSink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of events delivered for one tap
func (s *RecordingSink) Kinds(tapName string) []events.Kind {
	var kinds []events.Kind
	for _, e := range s.Events() {
		if e.Tap == tapName {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// ErrWaitTimeout is returned by WaitFor when the count is not reached in time
var ErrWaitTimeout = errors.New("timed out waiting for events")

// WaitFor blocks until at least n events were delivered or timeout elapses
func (s *RecordingSink) WaitFor(n int, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		got := len(s.events)
		s.mu.Unlock()
		if got >= n {
			return nil
		}
		select {
		case <-s.signal:
		case <-deadline.C:
			return ErrWaitTimeout
		}
	}
}
