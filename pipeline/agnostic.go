package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/mediaconnector/errors"
)

// AgnosticFactory names and builds Agnostic converters. Each factory keeps its
// own counter so two connectors never share converter numbering.
type AgnosticFactory struct {
	prefix string
	next   atomic.Uint32
}

// NewAgnosticFactory creates a factory producing "<prefix><n>" converters
func NewAgnosticFactory(prefix string) *AgnosticFactory {
	if prefix == "" {
		prefix = "agnosticbin"
	}
	return &AgnosticFactory{prefix: prefix}
}

// New builds the next converter
func (f *AgnosticFactory) New() (Converter, error) {
	n := f.next.Add(1) - 1
	return NewAgnostic(fmt.Sprintf("%s%d", f.prefix, n)), nil
}

// Agnostic is an in-memory stand-in for a transcoding node. It hands out
// output connections named src_<n> and tracks which are live.
type Agnostic struct {
	name  string
	input *agnosticHandle

	mu       sync.Mutex
	next     int
	outputs  map[string]*agnosticHandle
	released int
	refuse   bool
}

type agnosticHandle struct {
	name  string
	owner *Agnostic
}

func (h *agnosticHandle) Name() string { return h.name }
func (h *agnosticHandle) Owner() Converter { return h.owner }
func (h *agnosticHandle) String() string { return h.owner.name + ":" + h.name }

// NewAgnostic creates a converter with its single input
func NewAgnostic(name string) *Agnostic {
	a := &Agnostic{
		name:    name,
		outputs: make(map[string]*agnosticHandle),
	}
	a.input = &agnosticHandle{name: "sink", owner: a}
	return a
}

// Name implements Node
func (a *Agnostic) Name() string {
	return a.name
}

// Input implements Converter
func (a *Agnostic) Input() Handle {
	return a.input
}

// RefuseOutputs makes subsequent RequestOutput calls fail
func (a *Agnostic) RefuseOutputs(refuse bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refuse = refuse
}

// RequestOutput implements Converter
func (a *Agnostic) RequestOutput() (Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.refuse {
		return nil, errors.WrapTransient(errors.ErrOutputRequest, "Agnostic", "RequestOutput", a.name)
	}
	h := &agnosticHandle{name: fmt.Sprintf("src_%d", a.next), owner: a}
	a.next++
	a.outputs[h.name] = h
	return h, nil
}

// ReleaseOutput implements Converter
func (a *Agnostic) ReleaseOutput(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ah, ok := h.(*agnosticHandle)
	if !ok || ah.owner != a || a.outputs[ah.name] != ah {
		return errors.WrapInvalid(fmt.Errorf("output %v not owned by %s", h, a.name),
			"Agnostic", "ReleaseOutput", "ownership check")
	}
	delete(a.outputs, ah.name)
	a.released++
	return nil
}

// Outputs implements Converter
func (a *Agnostic) Outputs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outputs)
}

// Released returns how many outputs have been returned
func (a *Agnostic) Released() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}
