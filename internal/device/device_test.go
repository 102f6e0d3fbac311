package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeHandle is a provider handle driven by the test.
type fakeHandle struct {
	title string
	typ   DeviceType

	mu       sync.Mutex
	listener func(Control, int64)
	stopped  int
	writes   []fakeWrite
	listenErr error
}

type fakeWrite struct {
	ctrl  Control
	value int64
}

func (h *fakeHandle) Title() string    { return h.title }
func (h *fakeHandle) Type() DeviceType { return h.typ }

func (h *fakeHandle) Listen(fn func(Control, int64)) (func(), error) {
	if h.listenErr != nil {
		return nil, h.listenErr
	}
	h.mu.Lock()
	h.listener = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.listener = nil
		h.stopped++
		h.mu.Unlock()
	}, nil
}

func (h *fakeHandle) Write(_ context.Context, ctrl Control, value int64) error {
	h.mu.Lock()
	h.writes = append(h.writes, fakeWrite{ctrl, value})
	h.mu.Unlock()
	return nil
}

// emit simulates a provider value change. Returns false if nobody listens.
func (h *fakeHandle) emit(ctrl Control, value int64) bool {
	h.mu.Lock()
	fn := h.listener
	h.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctrl, value)
	return true
}

func joystick0(h Handle) *Device {
	return NewDevice(Identity{ProviderID: "p", Direction: Input, Type: TypeJoystick, Number: 0, Title: "Stick"}, h)
}

func boundInput(t DeviceType, number int, key KeyType, value int, react Reaction) *Binding {
	b := NewBinding(Input, nil, react)
	b.SetDescriptor(Descriptor{IsBound: true, DeviceType: t, DeviceNumber: number, KeyType: key, KeyValue: value})
	return b
}

// ===== Registration =====

func TestDevice_AddDeviceBinding(t *testing.T) {
	tests := []struct {
		name    string
		binding func() *Binding
		wantErr error
	}{
		{
			name:    "matching input",
			binding: func() *Binding { return boundInput(TypeJoystick, 0, KeyButton, 1, nil) },
		},
		{
			name:    "unbound",
			binding: func() *Binding { return NewBinding(Input, nil, nil) },
			wantErr: ErrUnbound,
		},
		{
			name:    "wrong type",
			binding: func() *Binding { return boundInput(TypeKeyboard, 0, KeyButton, 1, nil) },
			wantErr: ErrIdentityMismatch,
		},
		{
			name:    "wrong number",
			binding: func() *Binding { return boundInput(TypeJoystick, 1, KeyButton, 1, nil) },
			wantErr: ErrIdentityMismatch,
		},
		{
			name: "wrong direction",
			binding: func() *Binding {
				b := NewBinding(Output, nil, nil)
				b.SetDescriptor(Descriptor{IsBound: true, DeviceType: TypeJoystick, KeyType: KeyButton, KeyValue: 1})
				return b
			},
			wantErr: ErrIdentityMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := joystick0(&fakeHandle{typ: TypeJoystick})
			err := d.AddDeviceBinding(tt.binding())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AddDeviceBinding() error = %v, want %v", err, tt.wantErr)
			}
			wantLen := 0
			if tt.wantErr == nil {
				wantLen = 1
			}
			if got := len(d.Bindings()); got != wantLen {
				t.Errorf("registry size = %d, want %d", got, wantLen)
			}
		})
	}
}

func TestDevice_Conflict(t *testing.T) {
	d := joystick0(&fakeHandle{typ: TypeJoystick})
	first := boundInput(TypeJoystick, 0, KeyButton, 1, nil)
	second := boundInput(TypeJoystick, 0, KeyButton, 1, nil)

	if err := d.AddDeviceBinding(first); err != nil {
		t.Fatalf("first AddDeviceBinding() error = %v", err)
	}
	if err := d.AddDeviceBinding(first); err != nil {
		t.Errorf("re-adding same binding error = %v, want nil", err)
	}
	if err := d.AddDeviceBinding(second); !errors.Is(err, ErrSubscriptionConflict) {
		t.Errorf("conflicting AddDeviceBinding() error = %v, want ErrSubscriptionConflict", err)
	}

	// A different sub value is a different control.
	third := boundInput(TypeJoystick, 0, KeyButton, 1, nil)
	desc := third.Descriptor()
	desc.KeySubValue = 2
	third.SetDescriptor(desc)
	if err := d.AddDeviceBinding(third); err != nil {
		t.Errorf("different sub value error = %v", err)
	}
}

func TestDevice_RemoveDeviceBinding(t *testing.T) {
	d := joystick0(&fakeHandle{typ: TypeJoystick})
	b := boundInput(TypeJoystick, 0, KeyAxis, 0, nil)
	if err := d.AddDeviceBinding(b); err != nil {
		t.Fatal(err)
	}

	d.RemoveDeviceBinding(b)
	if _, ok := d.BindingFor(Control{KeyType: KeyAxis}); ok {
		t.Error("binding still registered after RemoveDeviceBinding")
	}
}

// ===== Staging =====

func TestDevice_StageCommitDiscard(t *testing.T) {
	d := joystick0(&fakeHandle{typ: TypeJoystick})
	old := boundInput(TypeJoystick, 0, KeyButton, 1, nil)
	if err := d.AddDeviceBinding(old); err != nil {
		t.Fatal(err)
	}
	ctrl := Control{KeyType: KeyButton, KeyValue: 1}

	// Discard keeps the live registry.
	d.Stage()
	if err := d.AddDeviceBinding(boundInput(TypeJoystick, 0, KeyButton, 2, nil)); err != nil {
		t.Fatal(err)
	}
	d.Discard()
	if got, _ := d.BindingFor(ctrl); got != old {
		t.Error("Discard changed the live registry")
	}
	if len(d.Bindings()) != 1 {
		t.Errorf("live size after Discard = %d, want 1", len(d.Bindings()))
	}

	// The staged registry starts empty, so the old binding does not conflict.
	replacement := boundInput(TypeJoystick, 0, KeyButton, 1, nil)
	d.Stage()
	if err := d.AddDeviceBinding(replacement); err != nil {
		t.Fatalf("staged AddDeviceBinding() error = %v", err)
	}
	if got, _ := d.BindingFor(ctrl); got != old {
		t.Error("staged binding visible before Commit")
	}
	d.Commit()
	if got, _ := d.BindingFor(ctrl); got != replacement {
		t.Error("Commit did not swap in staged binding")
	}

	// Commit without Stage is a no-op.
	d.Commit()
	if got, _ := d.BindingFor(ctrl); got != replacement {
		t.Error("bare Commit changed the registry")
	}
}

// ===== Activation and delivery =====

func TestDevice_DeliverAfterActivate(t *testing.T) {
	h := &fakeHandle{typ: TypeJoystick}
	d := joystick0(h)

	var got []int64
	b := boundInput(TypeJoystick, 0, KeyButton, 1, func(v int64) { got = append(got, v) })
	if err := d.AddDeviceBinding(b); err != nil {
		t.Fatal(err)
	}

	if h.emit(Control{KeyType: KeyButton, KeyValue: 1}, 1) {
		t.Fatal("device listening before Activate")
	}

	if err := d.Activate(); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := d.Activate(); err != nil {
		t.Fatalf("second Activate() error = %v", err)
	}

	h.emit(Control{KeyType: KeyButton, KeyValue: 1}, 1)
	h.emit(Control{KeyType: KeyButton, KeyValue: 9}, 1) // nobody bound
	h.emit(Control{KeyType: KeyButton, KeyValue: 1}, 0)

	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Errorf("reaction values = %v, want [1 0]", got)
	}
}

func TestDevice_Deactivate(t *testing.T) {
	h := &fakeHandle{typ: TypeJoystick}
	d := joystick0(h)
	fired := 0
	if err := d.AddDeviceBinding(boundInput(TypeJoystick, 0, KeyButton, 1, func(int64) { fired++ })); err != nil {
		t.Fatal(err)
	}
	if err := d.Activate(); err != nil {
		t.Fatal(err)
	}

	d.Deactivate()

	if d.IsActive() {
		t.Error("IsActive() = true after Deactivate")
	}
	if h.stopped != 1 {
		t.Errorf("stop called %d times, want 1", h.stopped)
	}
	if len(d.Bindings()) != 0 {
		t.Error("Deactivate should clear registrations")
	}
	if h.emit(Control{KeyType: KeyButton, KeyValue: 1}, 1) || fired != 0 {
		t.Error("reaction fired after Deactivate")
	}

	// Deactivating twice is harmless.
	d.Deactivate()
}

func TestDevice_ActivateListenError(t *testing.T) {
	boom := errors.New("unplugged")
	d := joystick0(&fakeHandle{typ: TypeJoystick, listenErr: boom})

	err := d.Activate()
	if !errors.Is(err, ErrListenFailed) || !errors.Is(err, boom) {
		t.Fatalf("Activate() error = %v, want ErrListenFailed wrapping cause", err)
	}
	if d.IsActive() {
		t.Error("device active after failed Activate")
	}
}

func TestDevice_DeliverThroughDispatcher(t *testing.T) {
	h := &fakeHandle{typ: TypeJoystick}
	d := joystick0(h)

	reacted := 0
	b := boundInput(TypeJoystick, 0, KeyButton, 1, func(int64) { reacted++ })
	gate := &gateDispatcher{}
	b.SetDispatcher(gate)

	if err := d.AddDeviceBinding(b); err != nil {
		t.Fatal(err)
	}
	if err := d.Activate(); err != nil {
		t.Fatal(err)
	}

	h.emit(Control{KeyType: KeyButton, KeyValue: 1}, 1)
	if reacted != 0 || gate.dropped != 1 {
		t.Errorf("closed gate: reacted=%d dropped=%d, want 0/1", reacted, gate.dropped)
	}

	gate.open = true
	h.emit(Control{KeyType: KeyButton, KeyValue: 1}, 1)
	if reacted != 1 {
		t.Errorf("open gate: reacted=%d, want 1", reacted)
	}
}

type gateDispatcher struct {
	open    bool
	dropped int
}

func (g *gateDispatcher) Dispatch(b *Binding, value int64) {
	if !g.open {
		g.dropped++
		return
	}
	b.React(value)
}

// ===== Output =====

func TestDevice_WriteOutput(t *testing.T) {
	h := &fakeHandle{typ: TypeKeyboard}
	d := NewDevice(Identity{ProviderID: "vk", Direction: Output, Type: TypeKeyboard, Title: "Virtual KB"}, h)

	out := NewBinding(Output, nil, nil)
	out.SetDescriptor(Descriptor{IsBound: true, DeviceType: TypeKeyboard, KeyType: KeyButton, KeyValue: 30})

	ctx := context.Background()
	if err := d.WriteOutput(ctx, out, 1); err != nil {
		t.Fatalf("WriteOutput() on inactive device error = %v", err)
	}
	if len(h.writes) != 0 {
		t.Fatal("inactive device forwarded a write")
	}

	if err := d.Activate(); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteOutput(ctx, out, 1); err != nil {
		t.Fatalf("WriteOutput() error = %v", err)
	}
	want := fakeWrite{Control{KeyType: KeyButton, KeyValue: 30}, 1}
	if len(h.writes) != 1 || h.writes[0] != want {
		t.Errorf("writes = %v, want [%v]", h.writes, want)
	}

	wrong := NewBinding(Output, nil, nil)
	wrong.SetDescriptor(Descriptor{IsBound: true, DeviceType: TypeMouse, KeyType: KeyButton})
	if err := d.WriteOutput(ctx, wrong, 1); !errors.Is(err, ErrIdentityMismatch) {
		t.Errorf("mismatched WriteOutput() error = %v, want ErrIdentityMismatch", err)
	}
}

// ===== Concurrency =====

func TestDevice_ConcurrentDeliveryAndCommit(t *testing.T) {
	h := &fakeHandle{typ: TypeJoystick}
	d := joystick0(h)
	if err := d.Activate(); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.emit(Control{KeyType: KeyAxis}, 1)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		d.Stage()
		_ = d.AddDeviceBinding(boundInput(TypeJoystick, 0, KeyAxis, 0, func(int64) {}))
		d.Commit()
	}
	close(stop)
	wg.Wait()
}
