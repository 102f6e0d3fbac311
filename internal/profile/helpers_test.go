package profile

import (
	"context"
	"sync"
	"testing"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// ===== Fake devices =====

type fakeHandle struct {
	title string
	typ   device.DeviceType

	mu     sync.Mutex
	fn     func(device.Control, int64)
	writes []int64
}

func (h *fakeHandle) Title() string           { return h.title }
func (h *fakeHandle) Type() device.DeviceType { return h.typ }

func (h *fakeHandle) Listen(fn func(device.Control, int64)) (func(), error) {
	h.mu.Lock()
	h.fn = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.fn = nil
		h.mu.Unlock()
	}, nil
}

func (h *fakeHandle) Write(_ context.Context, _ device.Control, v int64) error {
	h.mu.Lock()
	h.writes = append(h.writes, v)
	h.mu.Unlock()
	return nil
}

// press emits a control value; it does nothing while nobody listens.
func (h *fakeHandle) press(key int, v int64) {
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	if fn != nil {
		fn(device.Control{KeyType: device.KeyButton, KeyValue: key}, v)
	}
}

func (h *fakeHandle) listening() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fn != nil
}

type fakeProvider struct {
	in, out map[string]device.ProviderReport
}

func (p *fakeProvider) InputList() map[string]device.ProviderReport  { return p.in }
func (p *fakeProvider) OutputList() map[string]device.ProviderReport { return p.out }

// rig is a context with one input provider "pad" holding two joysticks and
// one output provider "vjoy" holding one joystick.
type rig struct {
	ctx    *Context
	stick0 *fakeHandle
	stick1 *fakeHandle
	vjoy   *fakeHandle
	rec    *captureRecorder
	prov   *fakeProvider
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		stick0: &fakeHandle{title: "Stick 0", typ: device.TypeJoystick},
		stick1: &fakeHandle{title: "Stick 1", typ: device.TypeJoystick},
		vjoy:   &fakeHandle{title: "vJoy", typ: device.TypeJoystick},
		rec:    &captureRecorder{},
	}
	prov := &fakeProvider{
		in: map[string]device.ProviderReport{
			"pad": {Title: "Pad", Devices: map[int]device.Handle{0: r.stick0, 1: r.stick1}},
		},
		out: map[string]device.ProviderReport{
			"vjoy": {Title: "vJoy", Devices: map[int]device.Handle{0: r.vjoy}},
		},
	}
	r.prov = prov
	r.ctx = NewContext(prov, testCatalog(t), WithRecorder(r.rec))
	if err := r.ctx.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return r
}

// unplugStick1 removes the second joystick from the input provider.
func (r *rig) unplugStick1() {
	r.prov.in["pad"] = device.ProviderReport{
		Title:   "Pad",
		Devices: map[int]device.Handle{0: r.stick0},
	}
}

// useDevices points p at the rig's providers for joysticks.
func useDevices(t *testing.T, p *Profile) {
	t.Helper()
	if err := p.SetDeviceGroup(device.Input, device.TypeJoystick, "pad"); err != nil {
		t.Fatal(err)
	}
	if err := p.SetDeviceGroup(device.Output, device.TypeJoystick, "vjoy"); err != nil {
		t.Fatal(err)
	}
}

// ===== Test behavior =====

// echo copies input slot 0 to output slot 0 and remembers every value.
type echo struct {
	plugin.Base
	in, out *device.Binding

	mu  sync.Mutex
	got []int64
}

func (*echo) Kind() string { return "echo" }

func newEcho() plugin.Plugin {
	e := &echo{}
	e.Init("Echo")
	e.in = e.InitializeInputMapping(func(v int64) {
		e.mu.Lock()
		e.got = append(e.got, v)
		e.mu.Unlock()
		e.WriteOutput(context.Background(), e.out, v)
	})
	e.out = e.InitializeOutputMapping()
	return e
}

func (e *echo) values() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int64(nil), e.got...)
}

// panicky panics in its reaction.
type panicky struct {
	plugin.Base
}

func (*panicky) Kind() string { return "panicky" }

func newPanicky() plugin.Plugin {
	p := &panicky{}
	p.Init("Panicky")
	p.InitializeInputMapping(func(int64) { panic("boom") })
	return p
}

func testCatalog(t *testing.T) *plugin.Catalog {
	t.Helper()
	cat := plugin.NewCatalog()
	if err := cat.Register("echo", newEcho); err != nil {
		t.Fatal(err)
	}
	if err := cat.Register("panicky", newPanicky); err != nil {
		t.Fatal(err)
	}
	return cat
}

func button(number, key int) device.Descriptor {
	return device.Descriptor{
		IsBound:      true,
		DeviceType:   device.TypeJoystick,
		DeviceNumber: number,
		KeyType:      device.KeyButton,
		KeyValue:     key,
	}
}

// addEcho adds an echo to p with input bound to joystick number/key and the
// output bound to vJoy button 9.
func addEcho(t *testing.T, p *Profile, number, key int) *echo {
	t.Helper()
	e := newEcho().(*echo)
	if err := e.SetBinding(device.Input, 0, button(number, key)); err != nil {
		t.Fatal(err)
	}
	if err := e.SetBinding(device.Output, 0, button(0, 9)); err != nil {
		t.Fatal(err)
	}
	if err := p.AddPlugin(e); err != nil {
		t.Fatalf("AddPlugin() error = %v", err)
	}
	return e
}

// ===== Recorder =====

type captureRecorder struct {
	mu          sync.Mutex
	inputs      []InputEvent
	panics      int
	activations []ActivationReport
}

func (r *captureRecorder) InputDelivered(ev InputEvent) {
	r.mu.Lock()
	r.inputs = append(r.inputs, ev)
	r.mu.Unlock()
}

func (r *captureRecorder) ReactionPanicked(string, string) {
	r.mu.Lock()
	r.panics++
	r.mu.Unlock()
}

func (r *captureRecorder) OutputFailed(string, error) {}

func (r *captureRecorder) ProfileActivated(rep ActivationReport) {
	r.mu.Lock()
	r.activations = append(r.activations, rep)
	r.mu.Unlock()
}
