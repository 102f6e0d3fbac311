package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Identity locates a device inside the inventory.
type Identity struct {
	ProviderID string     `json:"provider_id"`
	Direction  Direction  `json:"direction"`
	Type       DeviceType `json:"type"`
	Index      int        `json:"index"`  // provider's own device index
	Number     int        `json:"number"` // position among same-type devices in the group
	Title      string     `json:"title"`
}

// Device is one physical device and the registry of bindings attached to it.
//
// The registry has a live map, consulted by delivery, and an optional staged
// map filled during a profile switch. Commit swaps staged into live in one
// step so a failed switch never disturbs the current subscriptions.
type Device struct {
	id     Identity
	handle Handle

	mu     sync.RWMutex
	live   map[Control]*Binding
	staged map[Control]*Binding

	stateMu sync.Mutex
	active  atomic.Bool
	stop    func()
}

// NewDevice wraps a provider handle.
func NewDevice(id Identity, h Handle) *Device {
	return &Device{
		id:     id,
		handle: h,
		live:   make(map[Control]*Binding),
	}
}

// Identity returns the device's identity.
func (d *Device) Identity() Identity { return d.id }

// Title returns the display title reported by the provider.
func (d *Device) Title() string { return d.id.Title }

// Type returns the device category.
func (d *Device) Type() DeviceType { return d.id.Type }

// Number returns the device's index among same-type devices in its group.
func (d *Device) Number() int { return d.id.Number }

// Direction returns Input or Output.
func (d *Device) Direction() Direction { return d.id.Direction }

// IsActive reports whether the device is listening (inputs) or accepting
// writes (outputs).
func (d *Device) IsActive() bool { return d.active.Load() }

// Matches reports whether desc, read in direction dir, describes this device.
func (d *Device) Matches(dir Direction, desc Descriptor) bool {
	return dir == d.id.Direction &&
		desc.DeviceType == d.id.Type &&
		desc.DeviceNumber == d.id.Number
}

// AddDeviceBinding registers b on this device. Inputs receive value changes
// once the device is active; outputs are recorded as write targets.
//
// While a profile switch is staged the binding goes to the staged registry
// and only becomes visible on Commit. Registering the same binding twice
// is a no-op.
//
// Returns ErrUnbound, ErrIdentityMismatch or ErrSubscriptionConflict.
func (d *Device) AddDeviceBinding(b *Binding) error {
	desc := b.Descriptor()
	if !desc.IsBound {
		return ErrUnbound
	}
	if !d.Matches(b.Direction(), desc) {
		return fmt.Errorf("%w: %s binding %s on %s#%d", ErrIdentityMismatch,
			b.Direction(), desc, d.id.Type, d.id.Number)
	}

	ctrl := desc.Control()

	d.mu.Lock()
	defer d.mu.Unlock()

	target := d.live
	if d.staged != nil {
		target = d.staged
	}
	if existing, ok := target[ctrl]; ok && existing != b {
		return fmt.Errorf("%w: %s on %s", ErrSubscriptionConflict, ctrl, d.id.Title)
	}
	target[ctrl] = b
	return nil
}

// RemoveDeviceBinding detaches b from the live and staged registries.
func (d *Device) RemoveDeviceBinding(b *Binding) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, reg := range []map[Control]*Binding{d.live, d.staged} {
		for ctrl, existing := range reg {
			if existing == b {
				delete(reg, ctrl)
			}
		}
	}
}

// Bindings returns the live bindings in no particular order.
func (d *Device) Bindings() []*Binding {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Binding, 0, len(d.live))
	for _, b := range d.live {
		out = append(out, b)
	}
	return out
}

// BindingFor returns the live binding on ctrl, if any.
func (d *Device) BindingFor(ctrl Control) (*Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.live[ctrl]
	return b, ok
}

// Stage opens an empty pending registry. AddDeviceBinding writes to it
// until Commit or Discard.
func (d *Device) Stage() {
	d.mu.Lock()
	d.staged = make(map[Control]*Binding)
	d.mu.Unlock()
}

// Commit replaces the live registry with the staged one. Waits for
// in-flight reactions. No-op when nothing is staged.
func (d *Device) Commit() {
	d.mu.Lock()
	if d.staged != nil {
		d.live = d.staged
		d.staged = nil
	}
	d.mu.Unlock()
}

// Discard drops the staged registry and keeps the live one.
func (d *Device) Discard() {
	d.mu.Lock()
	d.staged = nil
	d.mu.Unlock()
}

// Activate starts listening to the provider stream (inputs) or enables
// writes (outputs). Calling it on an active device does nothing.
func (d *Device) Activate() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.active.Load() {
		return nil
	}

	if d.id.Direction == Input && d.handle != nil {
		stop, err := d.handle.Listen(d.deliver)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrListenFailed, d.id.Title, err)
		}
		d.stop = stop
	}
	d.active.Store(true)
	return nil
}

// Deactivate stops listening and clears every registration.
func (d *Device) Deactivate() {
	d.stateMu.Lock()
	if d.active.Load() {
		d.active.Store(false)
		if d.stop != nil {
			d.stop()
			d.stop = nil
		}
	}
	d.stateMu.Unlock()

	d.mu.Lock()
	d.live = make(map[Control]*Binding)
	d.staged = nil
	d.mu.Unlock()
}

// WriteOutput forwards value to the provider for b's control.
// It does nothing while the device is inactive.
func (d *Device) WriteOutput(ctx context.Context, b *Binding, value int64) error {
	if !d.active.Load() {
		return nil
	}
	desc := b.Descriptor()
	if !d.Matches(b.Direction(), desc) {
		return fmt.Errorf("%w: %s binding %s on %s#%d", ErrIdentityMismatch,
			b.Direction(), desc, d.id.Type, d.id.Number)
	}
	if d.handle == nil {
		return ErrReadOnly
	}
	return d.handle.Write(ctx, desc.Control(), value)
}

// deliver is the provider callback. The read lock is held while the
// reaction runs so registration changes wait for it to finish.
func (d *Device) deliver(ctrl Control, value int64) {
	if !d.active.Load() {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if b, ok := d.live[ctrl]; ok {
		b.Fire(value)
	}
}
