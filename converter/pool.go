// Package converter manages the conversion subgraphs owned by a connector.
//
// Every sink tap gets its own subgraph: one converter node added to the host,
// bound to that tap for its whole life. Source taps borrow outputs from a
// subgraph once a format is known on its input.
//
// Subgraphs are reference counted. The sink tap holds one reference and each
// granted output holds another; the subgraph is removed from the host when the
// last reference goes away.
package converter

import (
	"fmt"
	"slices"
	"sync"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/errors"
	"github.com/c360/mediaconnector/pipeline"
)

// Factory builds converter nodes
type Factory interface {
	New() (pipeline.Converter, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func() (pipeline.Converter, error)

// New implements Factory
func (f FactoryFunc) New() (pipeline.Converter, error) {
	return f()
}

// Subgraph is one converter node and the bookkeeping around it
type Subgraph struct {
	conv pipeline.Converter
	sink string

	mu      sync.Mutex
	formats []caps.Caps

	// guarded by Pool.mu
	outputs   []pipeline.Handle
	refs      int
	destroyed bool
}

// Name returns the converter node name
func (sg *Subgraph) Name() string {
	return sg.conv.Name()
}

// Converter returns the wrapped converter node
func (sg *Subgraph) Converter() pipeline.Converter {
	return sg.conv
}

// SinkName returns the name of the sink tap the subgraph is bound to
func (sg *Subgraph) SinkName() string {
	return sg.sink
}

// Observe records a format seen on the subgraph input. Repeats are ignored.
func (sg *Subgraph) Observe(c caps.Caps) {
	if c.IsEmpty() {
		return
	}
	sg.mu.Lock()
	defer sg.mu.Unlock()
	if slices.ContainsFunc(sg.formats, c.Equal) {
		return
	}
	sg.formats = append(sg.formats, c)
}

// Formats returns the observed input formats in arrival order
func (sg *Subgraph) Formats() []caps.Caps {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return slices.Clone(sg.formats)
}

// accepts reports whether any observed format fits within c
func (sg *Subgraph) accepts(c caps.Caps) bool {
	for _, f := range sg.Formats() {
		if f.IsSubsetOf(c) {
			return true
		}
	}
	return false
}

// Pool owns the subgraphs of one connector
type Pool struct {
	host    pipeline.Host
	factory Factory

	mu        sync.Mutex
	subgraphs []*Subgraph
}

// NewPool creates a pool adding converters to host
func NewPool(host pipeline.Host, factory Factory) *Pool {
	if factory == nil {
		factory = pipeline.NewAgnosticFactory("")
	}
	return &Pool{host: host, factory: factory}
}

// Create instantiates a converter, adds it to the host and binds it to the
// named sink tap. The new subgraph holds the sink's reference.
func (p *Pool) Create(sinkName string) (*Subgraph, error) {
	conv, err := p.factory.New()
	if err != nil {
		return nil, errors.Wrap(err, "Pool", "Create", "converter instantiation")
	}
	if err := p.host.AddChild(conv); err != nil {
		return nil, errors.Wrap(err, "Pool", "Create", "add converter to host")
	}

	sg := &Subgraph{conv: conv, sink: sinkName, refs: 1}

	p.mu.Lock()
	p.subgraphs = append(p.subgraphs, sg)
	p.mu.Unlock()

	return sg, nil
}

// FindCompatible returns the first subgraph with an observed input format
// that fits within c, or nil.
func (p *Pool) FindCompatible(c caps.Caps) *Subgraph {
	if c.IsEmpty() {
		return nil
	}
	for _, sg := range p.All() {
		if sg.accepts(c) {
			return sg
		}
	}
	return nil
}

// BySink returns the subgraph bound to the named sink tap
func (p *Pool) BySink(name string) *Subgraph {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sg := range p.subgraphs {
		if sg.sink == name {
			return sg
		}
	}
	return nil
}

// ByInput returns the subgraph whose converter input is h
func (p *Pool) ByInput(h pipeline.Handle) *Subgraph {
	if h == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sg := range p.subgraphs {
		if sg.conv.Input() == h {
			return sg
		}
	}
	return nil
}

// RequestOutput asks the subgraph's converter for a new output. The output
// holds a reference until ReleaseOutput.
func (p *Pool) RequestOutput(sg *Subgraph) (pipeline.Handle, error) {
	p.mu.Lock()
	if sg.destroyed {
		p.mu.Unlock()
		return nil, errors.WrapFatal(errors.ErrNoConverter, "Pool", "RequestOutput", sg.Name())
	}
	// reserve before calling out so a concurrent release cannot destroy it
	sg.refs++
	p.mu.Unlock()

	h, err := sg.conv.RequestOutput()
	if err != nil {
		if uerr := p.Unref(sg); uerr != nil {
			return nil, uerr
		}
		return nil, errors.Wrap(err, "Pool", "RequestOutput", "converter output request")
	}

	p.mu.Lock()
	sg.outputs = append(sg.outputs, h)
	p.mu.Unlock()

	return h, nil
}

// ReleaseOutput returns an output to its converter and drops its reference
func (p *Pool) ReleaseOutput(sg *Subgraph, h pipeline.Handle) error {
	p.mu.Lock()
	i := slices.Index(sg.outputs, h)
	if i < 0 {
		p.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("output %s not granted by %s", h.Name(), sg.Name()),
			"Pool", "ReleaseOutput", "ownership check")
	}
	sg.outputs = slices.Delete(sg.outputs, i, i+1)
	p.mu.Unlock()

	if err := sg.conv.ReleaseOutput(h); err != nil {
		return errors.Wrap(err, "Pool", "ReleaseOutput", "converter output release")
	}
	return p.Unref(sg)
}

// Unref drops one reference, destroying the subgraph at zero
func (p *Pool) Unref(sg *Subgraph) error {
	p.mu.Lock()
	if sg.destroyed {
		p.mu.Unlock()
		return nil
	}
	sg.refs--
	if sg.refs > 0 {
		p.mu.Unlock()
		return nil
	}
	// detach under the lock so a concurrent RequestOutput cannot revive it
	p.detach(sg)
	p.mu.Unlock()

	return p.removeFromHost(sg)
}

// Refs returns the current reference count of sg
func (p *Pool) Refs(sg *Subgraph) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sg.refs
}

// Outputs returns the live outputs granted by sg
func (p *Pool) Outputs(sg *Subgraph) []pipeline.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(sg.outputs)
}

// Release removes the subgraph from the pool and its converter from the host,
// regardless of outstanding references.
func (p *Pool) Release(sg *Subgraph) error {
	p.mu.Lock()
	if sg.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.detach(sg)
	p.mu.Unlock()

	return p.removeFromHost(sg)
}

// detach marks sg destroyed and drops it from the pool. Caller holds p.mu.
func (p *Pool) detach(sg *Subgraph) {
	sg.destroyed = true
	sg.refs = 0
	sg.outputs = nil
	p.subgraphs = slices.DeleteFunc(p.subgraphs, func(x *Subgraph) bool { return x == sg })
}

func (p *Pool) removeFromHost(sg *Subgraph) error {
	if err := p.host.RemoveChild(sg.conv); err != nil {
		return errors.Wrap(err, "Pool", "Release", "remove converter from host")
	}
	return nil
}

// Forget drops all bookkeeping without touching the host
func (p *Pool) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sg := range p.subgraphs {
		sg.destroyed = true
	}
	p.subgraphs = nil
}

// Len returns the number of live subgraphs
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subgraphs)
}

// All returns a snapshot of live subgraphs in creation order
func (p *Pool) All() []*Subgraph {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.subgraphs)
}
