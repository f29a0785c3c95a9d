package pipeline

import (
	"fmt"
	"slices"
	"sync"

	"github.com/c360/mediaconnector/caps"
	"github.com/c360/mediaconnector/errors"
)

// Bin is an in-memory Host. It tracks children, exposed pads and pad targets,
// and lets callers drive the three state slots. It moves no media.
type Bin struct {
	name string

	mu       sync.RWMutex
	current  State
	pending  State
	target   State
	children []Node
	pads     []Pad
	targets  map[string]Handle
	bindHook func(Pad, Handle) bool
}

// NewBin creates an empty bin in StateNull
func NewBin(name string) *Bin {
	return &Bin{
		name:    name,
		targets: make(map[string]Handle),
	}
}

// Name returns the bin name
func (b *Bin) Name() string {
	return b.name
}

// SetState sets current, pending and target at once
func (b *Bin) SetState(current, pending, target State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current, b.pending, b.target = current, pending, target
}

// SetBindHook installs a predicate consulted before every Bind. Returning
// false makes the bind fail. Pass nil to remove.
func (b *Bin) SetBindHook(hook func(Pad, Handle) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindHook = hook
}

// ActivationState implements Host
func (b *Bin) ActivationState() Activation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ActivationFor(b.current, b.pending, b.target)
}

// AddChild implements Host
func (b *Bin) AddChild(n Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.ContainsFunc(b.children, func(c Node) bool { return c.Name() == n.Name() }) {
		return errors.WrapInvalid(fmt.Errorf("child %s already in %s", n.Name(), b.name),
			"Bin", "AddChild", "name check")
	}
	b.children = append(b.children, n)
	return nil
}

// RemoveChild implements Host
func (b *Bin) RemoveChild(n Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.children, func(c Node) bool { return c.Name() == n.Name() })
	if i < 0 {
		return errors.WrapInvalid(fmt.Errorf("child %s not in %s", n.Name(), b.name),
			"Bin", "RemoveChild", "lookup")
	}
	b.children = slices.Delete(b.children, i, i+1)
	return nil
}

// Expose implements Host
func (b *Bin) Expose(p Pad) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if slices.ContainsFunc(b.pads, func(x Pad) bool { return x.Name() == p.Name() }) {
		return errors.WrapInvalid(fmt.Errorf("pad %s already exposed on %s", p.Name(), b.name),
			"Bin", "Expose", "name check")
	}
	b.pads = append(b.pads, p)
	return nil
}

// Withdraw implements Host
func (b *Bin) Withdraw(p Pad) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.pads, func(x Pad) bool { return x.Name() == p.Name() })
	if i < 0 {
		return errors.WrapInvalid(fmt.Errorf("pad %s not exposed on %s", p.Name(), b.name),
			"Bin", "Withdraw", "lookup")
	}
	b.pads = slices.Delete(b.pads, i, i+1)
	delete(b.targets, p.Name())
	p.SetActive(false)
	return nil
}

// Bind implements Host. The pad must be exposed and the target's converter
// must be a child of the bin.
func (b *Bin) Bind(p Pad, target Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if target == nil || target.Owner() == nil {
		return false
	}
	if b.bindHook != nil && !b.bindHook(p, target) {
		return false
	}
	if !slices.ContainsFunc(b.pads, func(x Pad) bool { return x.Name() == p.Name() }) {
		return false
	}
	owner := target.Owner().Name()
	if !slices.ContainsFunc(b.children, func(c Node) bool { return c.Name() == owner }) {
		return false
	}
	b.targets[p.Name()] = target
	return true
}

// Unbind implements Host
func (b *Bin) Unbind(p Pad) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.targets, p.Name())
}

// Target returns the handle bound to the named pad
func (b *Bin) Target(pad string) (Handle, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.targets[pad]
	return h, ok
}

// Children returns a snapshot of the child nodes in insertion order
func (b *Bin) Children() []Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.children)
}

// Pads returns a snapshot of the exposed pads in insertion order
func (b *Bin) Pads() []Pad {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.pads)
}

// StaticPeer is a downstream element with fixed allowed caps
type StaticPeer struct {
	name    string
	allowed caps.Caps
}

// NewStaticPeer creates a peer that always allows the given caps
func NewStaticPeer(name string, allowed caps.Caps) *StaticPeer {
	return &StaticPeer{name: name, allowed: allowed}
}

// Name implements Peer
func (p *StaticPeer) Name() string {
	return p.name
}

// AllowedCaps implements Peer
func (p *StaticPeer) AllowedCaps() caps.Caps {
	return p.allowed
}
