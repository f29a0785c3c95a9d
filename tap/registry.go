package tap

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/pipeline"
)

// Registry tracks the taps of one connector and assigns their names.
// Counters belong to the registry, start at zero and are never reused, so a
// name is unique for the registry's lifetime even after its tap is removed.
type Registry struct {
	sinkCount   atomic.Uint32
	sourceCount atomic.Uint32

	mu      sync.RWMutex
	sinks   []*Sink
	sources []*Source
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// CreateSink registers a sink tap bound to a converter input
func (r *Registry) CreateSink(input pipeline.Handle) *Sink {
	return r.RegisterSink(r.ReserveSinkName(), input)
}

// ReserveSinkName takes the next sink name without registering a tap. The
// name stays consumed even if it is never registered.
func (r *Registry) ReserveSinkName() string {
	n := r.sinkCount.Add(1) - 1
	return fmt.Sprintf("%s%d", SinkPrefix, n)
}

// RegisterSink registers a sink tap under a name from ReserveSinkName
func (r *Registry) RegisterSink(name string, input pipeline.Handle) *Sink {
	s := &Sink{
		name:  name,
		input: input,
	}

	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()

	return s
}

// CreateSource registers an unlinked source tap in UNCONFIGURED. Empty
// declared caps mean no declared format.
func (r *Registry) CreateSource(declared caps.Caps) *Source {
	n := r.sourceCount.Add(1) - 1
	s := &Source{
		name: fmt.Sprintf("%s%d", SourcePrefix, n),
		data: SourceState{State: Unconfigured, declared: declared},
	}

	r.mu.Lock()
	r.sources = append(r.sources, s)
	r.mu.Unlock()

	return s
}

// ForEachSource calls fn for every source tap registered at call time. fn runs
// on a snapshot without the registry lock, so it may change tap state; taps
// added or removed meanwhile are not reflected in this iteration.
func (r *Registry) ForEachSource(fn func(*Source)) {
	for _, s := range r.Sources() {
		fn(s)
	}
}

// Sinks returns a snapshot of sink taps in creation order
func (r *Registry) Sinks() []*Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sinks)
}

// Sources returns a snapshot of source taps in creation order
func (r *Registry) Sources() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.sources)
}

// Sink looks up a sink tap by name
func (r *Registry) Sink(name string) (*Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.sinks, func(s *Sink) bool { return s.name == name })
	if i < 0 {
		return nil, false
	}
	return r.sinks[i], true
}

// Source looks up a source tap by name
func (r *Registry) Source(name string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.sources, func(s *Source) bool { return s.name == name })
	if i < 0 {
		return nil, false
	}
	return r.sources[i], true
}

// Remove unregisters a tap by name. Its counter slot is not reused.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := slices.IndexFunc(r.sinks, func(s *Sink) bool { return s.name == name }); i >= 0 {
		r.sinks = slices.Delete(r.sinks, i, i+1)
		return true
	}
	if i := slices.IndexFunc(r.sources, func(s *Source) bool { return s.name == name }); i >= 0 {
		r.sources = slices.Delete(r.sources, i, i+1)
		return true
	}
	return false
}

// Len returns the number of registered sink and source taps
func (r *Registry) Len() (sinks, sources int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks), len(r.sources)
}
