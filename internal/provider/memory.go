package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/infrastructure/config"
)

// MemoryID is the provider ID of the configured in-process provider.
const MemoryID = "memory"

// Memory is an in-process provider of virtual devices. Input devices are
// driven with Emit; output devices record what behaviors write.
//
// It backs development setups without hardware and the API's device
// simulation endpoint.
type Memory struct {
	id    string
	title string

	mu      sync.RWMutex
	inputs  []*MemoryDevice
	outputs []*MemoryDevice
}

// NewMemory creates an empty provider.
func NewMemory(id, title string) *Memory {
	return &Memory{id: id, title: title}
}

// NewMemoryFromConfig creates the provider described by cfg: the
// configured keyboards and joysticks as inputs, plus one virtual keyboard
// and one virtual joystick as outputs.
func NewMemoryFromConfig(cfg config.MemoryProviderConfig) *Memory {
	m := NewMemory(MemoryID, "Virtual devices")
	for i := 0; i < cfg.Keyboards; i++ {
		m.AddInput(device.TypeKeyboard, fmt.Sprintf("Virtual Keyboard %d", i+1))
	}
	for i := 0; i < cfg.Joysticks; i++ {
		m.AddInput(device.TypeJoystick, fmt.Sprintf("Virtual Joystick %d", i+1))
	}
	m.AddOutput(device.TypeKeyboard, "Virtual Keyboard Out")
	m.AddOutput(device.TypeJoystick, "Virtual Joystick Out")
	return m
}

// ID returns the provider ID.
func (m *Memory) ID() string { return m.id }

// AddInput adds an input device. Call Context.Init afterwards to make it
// visible.
func (m *Memory) AddInput(t device.DeviceType, title string) *MemoryDevice {
	d := newMemoryDevice(t, title)
	m.mu.Lock()
	m.inputs = append(m.inputs, d)
	m.mu.Unlock()
	return d
}

// AddOutput adds an output device.
func (m *Memory) AddOutput(t device.DeviceType, title string) *MemoryDevice {
	d := newMemoryDevice(t, title)
	m.mu.Lock()
	m.outputs = append(m.outputs, d)
	m.mu.Unlock()
	return d
}

// Input returns the number-th input device of type t.
func (m *Memory) Input(t device.DeviceType, number int) (*MemoryDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return nth(m.inputs, t, number)
}

// Output returns the number-th output device of type t.
func (m *Memory) Output(t device.DeviceType, number int) (*MemoryDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return nth(m.outputs, t, number)
}

func nth(list []*MemoryDevice, t device.DeviceType, number int) (*MemoryDevice, error) {
	n := 0
	for _, d := range list {
		if d.typ != t {
			continue
		}
		if n == number {
			return d, nil
		}
		n++
	}
	return nil, fmt.Errorf("%w: %s#%d", device.ErrDeviceNotFound, t, number)
}

// InputList implements device.Provider.
func (m *Memory) InputList() map[string]device.ProviderReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report(m.inputs)
}

// OutputList implements device.Provider.
func (m *Memory) OutputList() map[string]device.ProviderReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report(m.outputs)
}

func (m *Memory) report(list []*MemoryDevice) map[string]device.ProviderReport {
	if len(list) == 0 {
		return map[string]device.ProviderReport{}
	}
	devices := make(map[int]device.Handle, len(list))
	for i, d := range list {
		devices[i] = d
	}
	return map[string]device.ProviderReport{
		m.id: {ProviderID: m.id, Title: m.title, Devices: devices},
	}
}

// MemoryDevice is one virtual device. It implements device.Handle.
type MemoryDevice struct {
	title string
	typ   device.DeviceType

	mu     sync.Mutex
	fn     func(device.Control, int64)
	gen    uint64
	values map[device.Control]int64
	writes int
}

func newMemoryDevice(t device.DeviceType, title string) *MemoryDevice {
	return &MemoryDevice{title: title, typ: t, values: make(map[device.Control]int64)}
}

// Title implements device.Handle.
func (d *MemoryDevice) Title() string { return d.title }

// Type implements device.Handle.
func (d *MemoryDevice) Type() device.DeviceType { return d.typ }

// Listen implements device.Handle. A second Listen replaces the first;
// the first stop function then does nothing.
func (d *MemoryDevice) Listen(fn func(device.Control, int64)) (func(), error) {
	if !d.typ.Valid() {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidDevice, d.typ)
	}
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.fn = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		if d.gen == gen {
			d.fn = nil
		}
		d.mu.Unlock()
	}, nil
}

// Write implements device.Handle by recording the value.
func (d *MemoryDevice) Write(ctx context.Context, ctrl device.Control, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.values[ctrl] = value
	d.writes++
	d.mu.Unlock()
	return nil
}

// Emit delivers value on ctrl to the listener, synchronously.
func (d *MemoryDevice) Emit(ctrl device.Control, value int64) error {
	d.mu.Lock()
	fn := d.fn
	d.values[ctrl] = value
	d.mu.Unlock()

	if fn == nil {
		return ErrNoListener
	}
	fn(ctrl, value)
	return nil
}

// Value returns the last value emitted or written on ctrl.
func (d *MemoryDevice) Value(ctrl device.Control) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[ctrl]
	return v, ok
}

// Writes returns how many values were written to the device.
func (d *MemoryDevice) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// Listening reports whether a listener is registered.
func (d *MemoryDevice) Listening() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fn != nil
}
