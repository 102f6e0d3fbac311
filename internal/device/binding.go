package device

import "sync"

// Reaction receives a new control value for an input binding.
type Reaction func(value int64)

// Owner is the behavior that declared a binding. The binding only keeps it
// for diagnostics and never drives its lifecycle.
type Owner interface {
	Title() string
}

// Dispatcher routes input values to reactions. Profiles implement it so
// they can drop values that arrive while they are not active.
type Dispatcher interface {
	Dispatch(b *Binding, value int64)
}

// Binding is one input or output slot of a behavior.
//
// The descriptor is edited by the owner thread while devices read it from
// delivery goroutines, so all access goes through the mutex.
type Binding struct {
	mu         sync.RWMutex
	desc       Descriptor
	direction  Direction
	owner      Owner
	reaction   Reaction
	dispatcher Dispatcher
}

// NewBinding creates an unbound slot. reaction is ignored for outputs.
// It panics on an invalid direction.
func NewBinding(dir Direction, owner Owner, reaction Reaction) *Binding {
	if !dir.Valid() {
		panic("device: NewBinding with invalid direction " + string(dir))
	}
	b := &Binding{direction: dir, owner: owner}
	if dir == Input {
		b.reaction = reaction
	}
	return b
}

// Direction returns the slot's I/O direction. It never changes.
func (b *Binding) Direction() Direction {
	return b.direction
}

// Descriptor returns a copy of the resolution fields.
func (b *Binding) Descriptor() Descriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.desc
}

// SetDescriptor replaces the resolution fields.
func (b *Binding) SetDescriptor(d Descriptor) {
	b.mu.Lock()
	b.desc = d
	b.mu.Unlock()
}

// Owner returns the declaring behavior, or nil for a detached copy.
func (b *Binding) Owner() Owner {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.owner
}

// SetOwner replaces the owner back-reference.
func (b *Binding) SetOwner(o Owner) {
	b.mu.Lock()
	b.owner = o
	b.mu.Unlock()
}

// SetDispatcher sets the handle Fire routes through. nil makes Fire call
// the reaction directly.
func (b *Binding) SetDispatcher(d Dispatcher) {
	b.mu.Lock()
	b.dispatcher = d
	b.mu.Unlock()
}

// Fire delivers value through the dispatcher, or straight to the reaction
// when no dispatcher is attached.
func (b *Binding) Fire(value int64) {
	b.mu.RLock()
	d := b.dispatcher
	b.mu.RUnlock()

	if d != nil {
		d.Dispatch(b, value)
		return
	}
	b.React(value)
}

// React invokes the reaction. No-op for outputs and reaction-less inputs.
func (b *Binding) React(value int64) {
	b.mu.RLock()
	r := b.reaction
	b.mu.RUnlock()

	if r != nil {
		r(value)
	}
}

// Clone copies direction and descriptor only. The copy has no owner,
// reaction or dispatcher, so it can be subscribed independently.
func (b *Binding) Clone() *Binding {
	return &Binding{direction: b.direction, desc: b.Descriptor()}
}
