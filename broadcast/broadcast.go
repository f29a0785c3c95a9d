// Package broadcast asks upstream listeners whether they can produce a format.
//
// Listeners are polled in registration order and the first one to claim the
// format stops the broadcast. A claim only promises that a producer will show
// up; nothing is linked here.
package broadcast

import (
	"slices"
	"sync"

	"github.com/c360/mediaconnector/caps"
)

// Listener answers capability announcements
type Listener interface {
	// OnCapabilityAnnounced returns true to claim the format
	OnCapabilityAnnounced(c caps.Caps) bool
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(c caps.Caps) bool

// OnCapabilityAnnounced implements Listener
func (f ListenerFunc) OnCapabilityAnnounced(c caps.Caps) bool {
	return f(c)
}

type entry struct {
	id uint64
	l  Listener
}

// Broadcaster holds an ordered listener list
type Broadcaster struct {
	mu        sync.Mutex
	next      uint64
	listeners []entry
}

// New creates a broadcaster with no listeners
func New() *Broadcaster {
	return &Broadcaster{}
}

// Register appends a listener and returns its id for Unregister
func (b *Broadcaster) Register(l Listener) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.listeners = append(b.listeners, entry{id: b.next, l: l})
	return b.next
}

// Unregister removes a listener. Announcements already in flight may still
// reach it.
func (b *Broadcaster) Unregister(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.listeners)
	b.listeners = slices.DeleteFunc(b.listeners, func(e entry) bool { return e.id == id })
	return len(b.listeners) != n
}

// Announce offers c to each listener in order and reports whether one claimed
// it. Listeners run synchronously on the caller's goroutine without the
// broadcaster lock, so they may register or unregister.
func (b *Broadcaster) Announce(c caps.Caps) bool {
	b.mu.Lock()
	snapshot := slices.Clone(b.listeners)
	b.mu.Unlock()

	for _, e := range snapshot {
		if e.l.OnCapabilityAnnounced(c) {
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
