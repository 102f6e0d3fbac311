package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/remapd/internal/device"
)

// Plugin is a remapping behavior. Concrete types embed Base, which supplies
// Core and a no-op OnActivate.
type Plugin interface {
	// Kind is the catalog key the behavior was registered under.
	Kind() string

	// Core returns the embedded Base.
	Core() *Base

	// OnActivate runs before inputs are subscribed. It must not have
	// external effects.
	OnActivate()
}

// Configurable is implemented by behaviors with persisted settings.
// Settings returns a flat map of scalars; ApplySettings validates and
// applies one produced by Settings.
type Configurable interface {
	Settings() map[string]any
	ApplySettings(settings map[string]any) error
}

// Host is the profile a behavior belongs to.
//
// LocalDevice resolves a slot against the devices visible to the profile.
// Dispatch gates reactions on the profile being active. PluginChanged marks
// the configuration as modified. WriteFailed receives provider write errors,
// which WriteOutput never returns.
type Host interface {
	device.Dispatcher
	LocalDevice(b *device.Binding) (*device.Device, error)
	PluginChanged()
	WriteFailed(b *device.Binding, err error)
}

// Base carries the state every behavior shares.
//
// Slot lists are mutated only by the owner thread (construction, PostLoad,
// editor). host and list are also read from delivery goroutines through
// WriteOutput and Attached, so they sit behind mu.
type Base struct {
	mu    sync.RWMutex
	id    string
	title string

	inputs  []*device.Binding
	outputs []*device.Binding

	declaredInputs  int
	declaredOutputs int

	host    Host
	list    *List
	loaded  bool
	removed bool
}

// Init assigns a fresh id and the display title. Constructors call it
// before declaring slots.
func (b *Base) Init(title string) {
	b.id = uuid.NewString()
	b.title = title
}

// Core returns b. Embedding promotes it to the concrete behavior.
func (b *Base) Core() *Base { return b }

// OnActivate is the default no-op hook.
func (b *Base) OnActivate() {}

// ID returns the behavior's persistent identifier.
func (b *Base) ID() string { return b.id }

// SetID replaces the identifier. Used when restoring from storage.
func (b *Base) SetID(id string) { b.id = id }

// Title returns the display title.
func (b *Base) Title() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.title
}

// SetTitle replaces the title without marking the configuration changed.
func (b *Base) SetTitle(title string) {
	b.mu.Lock()
	b.title = title
	b.mu.Unlock()
}

// Rename sets the title and marks the configuration changed.
func (b *Base) Rename(title string) {
	b.SetTitle(title)
	if h := b.Host(); h != nil {
		h.PluginChanged()
	}
}

// InitializeInputMapping declares the next input slot and returns it so the
// concrete behavior can keep a typed handle.
func (b *Base) InitializeInputMapping(reaction device.Reaction) *device.Binding {
	return b.initializeMapping(device.Input, reaction)
}

// InitializeOutputMapping declares the next output slot.
func (b *Base) InitializeOutputMapping() *device.Binding {
	return b.initializeMapping(device.Output, nil)
}

func (b *Base) initializeMapping(dir device.Direction, reaction device.Reaction) *device.Binding {
	binding := device.NewBinding(dir, b, reaction)

	switch dir {
	case device.Input:
		b.inputs = append(b.inputs, binding)
		b.declaredInputs++
	case device.Output:
		b.outputs = append(b.outputs, binding)
		b.declaredOutputs++
	default:
		panic(fmt.Sprintf("plugin: unknown direction %q", dir))
	}
	return binding
}

// Inputs returns the input slots in declaration order.
func (b *Base) Inputs() []*device.Binding {
	return append([]*device.Binding(nil), b.inputs...)
}

// Outputs returns the output slots in declaration order.
func (b *Base) Outputs() []*device.Binding {
	return append([]*device.Binding(nil), b.outputs...)
}

// DeclaredInputs is the number of input slots declared at construction.
func (b *Base) DeclaredInputs() int { return b.declaredInputs }

// DeclaredOutputs is the number of output slots declared at construction.
func (b *Base) DeclaredOutputs() int { return b.declaredOutputs }

// InputDescriptors returns a copy of every input slot's resolution fields.
func (b *Base) InputDescriptors() []device.Descriptor {
	return descriptors(b.inputs)
}

// OutputDescriptors returns a copy of every output slot's resolution fields.
func (b *Base) OutputDescriptors() []device.Descriptor {
	return descriptors(b.outputs)
}

func descriptors(list []*device.Binding) []device.Descriptor {
	out := make([]device.Descriptor, len(list))
	for i, binding := range list {
		out[i] = binding.Descriptor()
	}
	return out
}

// SetBinding replaces the descriptor of one declared slot and marks the
// configuration changed. The new value takes effect on next activation.
func (b *Base) SetBinding(dir device.Direction, slot int, desc device.Descriptor) error {
	var list []*device.Binding
	switch dir {
	case device.Input:
		list = b.inputs
	case device.Output:
		list = b.outputs
	default:
		return fmt.Errorf("%w: %q", device.ErrUnknownDirection, dir)
	}
	if slot < 0 || slot >= len(list) {
		return fmt.Errorf("%w: %s slot %d of %d", ErrSlotOutOfRange, dir, slot, len(list))
	}

	list[slot].SetDescriptor(desc)
	if h := b.Host(); h != nil {
		h.PluginChanged()
	}
	return nil
}

// Restore loads stored descriptors into the slot lists as they were saved.
// Declared slots keep their binding (and reaction); extra stored entries
// are appended as detached bindings so PostLoad can compact them.
func (b *Base) Restore(inputs, outputs []device.Descriptor) {
	b.inputs = restoreList(device.Input, b.inputs, inputs, b.declaredInputs)
	b.outputs = restoreList(device.Output, b.outputs, outputs, b.declaredOutputs)
}

func restoreList(dir device.Direction, list []*device.Binding, stored []device.Descriptor, declared int) []*device.Binding {
	list = list[:declared:declared]
	for i, desc := range stored {
		if i < declared {
			list[i].SetDescriptor(desc)
			continue
		}
		extra := device.NewBinding(dir, nil, nil)
		extra.SetDescriptor(desc)
		list = append(list, extra)
	}
	return list
}

// Host returns the owning profile, or nil before PostLoad.
func (b *Base) Host() Host {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.host
}

// List returns the containing list, or nil when detached.
func (b *Base) List() *List {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.list
}

// Attached reports whether the behavior sits in a list. Profiles drop
// reactions for detached behaviors.
func (b *Base) Attached() bool {
	return b.List() != nil
}

// Loaded reports whether PostLoad has run.
func (b *Base) Loaded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.loaded
}

// Removed reports whether Remove has detached the behavior. A removed
// behavior cannot be attached again.
func (b *Base) Removed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.removed
}

// Attach links the behavior to its host and containing list and routes
// every slot's reaction through the host.
func (b *Base) Attach(host Host, list *List) {
	b.mu.Lock()
	b.host = host
	b.list = list
	b.mu.Unlock()

	var d device.Dispatcher
	if host != nil {
		d = host
	}
	for _, binding := range b.inputs {
		binding.SetOwner(b)
		binding.SetDispatcher(d)
	}
	for _, binding := range b.outputs {
		binding.SetOwner(b)
	}
}

// PostLoad rehydrates the behavior after it was built from storage. It
// re-links host and containing list, then compacts legacy doubled slot
// lists back to the declared length. It runs exactly once.
//
// A slot count mismatch is reported after the list has been truncated to
// the declared length; the behavior is still usable.
func (b *Base) PostLoad(host Host, list *List) error {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		return ErrAlreadyLoaded
	}
	b.loaded = true
	b.mu.Unlock()

	var errs []error
	var err error
	if b.inputs, err = ZipBindingList(b.inputs, b.declaredInputs); err != nil {
		errs = append(errs, fmt.Errorf("inputs: %w", err))
	}
	if b.outputs, err = ZipBindingList(b.outputs, b.declaredOutputs); err != nil {
		errs = append(errs, fmt.Errorf("outputs: %w", err))
	}

	b.Attach(host, list)

	if len(errs) > 0 {
		return fmt.Errorf("%s %q: %w", b.id, b.Title(), errors.Join(errs...))
	}
	return nil
}

// Remove detaches the behavior from its containing list. It reports
// whether the behavior was in a list. Removal is terminal.
func (b *Base) Remove() bool {
	list := b.List()
	if list == nil {
		return false
	}
	removed := list.remove(b)

	b.mu.Lock()
	b.list = nil
	b.removed = true
	b.mu.Unlock()
	return removed
}

// WriteOutput forwards value to the device bound to out. It does nothing
// when the slot is unbound, has no device type, or its device is not
// visible to the owning profile. Provider errors go to the host.
func (b *Base) WriteOutput(ctx context.Context, out *device.Binding, value int64) {
	if !out.Descriptor().Resolvable() {
		return
	}
	host := b.Host()
	if host == nil {
		return
	}

	dev, err := host.LocalDevice(out)
	if err != nil {
		return
	}
	if err := dev.WriteOutput(ctx, out, value); err != nil {
		host.WriteFailed(out, err)
	}
}
