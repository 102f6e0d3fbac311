package profile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// ===== Activation =====

func TestActivateProfile_DeliversToReaction(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("Flight")
	useDevices(t, p)
	e := addEcho(t, p, 0, 1)

	report, err := r.ctx.ActivateProfile(p)
	if err != nil {
		t.Fatalf("ActivateProfile() error = %v", err)
	}
	if !report.OK() {
		t.Fatalf("ActivateProfile() failures = %v", report.Outcome.Err())
	}
	if r.ctx.ActiveProfile() != p {
		t.Fatal("active profile not set")
	}

	dev, err := r.ctx.Inventory().Groups(device.Input)[0].Device(device.TypeJoystick, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := dev.BindingFor(device.Control{KeyType: device.KeyButton, KeyValue: 1}); !ok || got != e.in {
		t.Fatal("joystick registry does not hold the echo input")
	}

	r.stick0.press(1, 1)

	if diff := cmp.Diff([]int64{1}, e.values()); diff != "" {
		t.Errorf("reaction values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1}, r.vjoy.writes); diff != "" {
		t.Errorf("output writes mismatch (-want +got):\n%s", diff)
	}
	if len(r.rec.inputs) != 1 || r.rec.inputs[0].Provider != "pad" {
		t.Errorf("recorded inputs = %+v", r.rec.inputs)
	}
}

func TestActivateProfile_FailureKeepsPrevious(t *testing.T) {
	r := newRig(t)
	good := r.ctx.AddProfile("Good")
	useDevices(t, good)
	e := addEcho(t, good, 0, 1)

	if rep, _ := r.ctx.ActivateProfile(good); !rep.OK() {
		t.Fatalf("activating good profile failed: %v", rep.Outcome.Err())
	}

	bad := r.ctx.AddProfile("Bad")
	useDevices(t, bad)
	addEcho(t, bad, 0, 2)
	addEcho(t, bad, 7, 1) // no joystick #7

	report, err := r.ctx.ActivateProfile(bad)
	if err != nil {
		t.Fatalf("ActivateProfile() error = %v", err)
	}
	if report.OK() {
		t.Fatal("activation should fail for a missing device")
	}
	if len(report.Outcome.Failures) != 1 || !errors.Is(report.Outcome.Failures[0].Err, device.ErrDeviceNotFound) {
		t.Errorf("failures = %+v", report.Outcome.Failures)
	}
	if r.ctx.ActiveProfile() != good {
		t.Error("failed activation changed the active profile")
	}

	dev, _ := r.ctx.Inventory().Groups(device.Input)[0].Device(device.TypeJoystick, 0)
	if _, ok := dev.BindingFor(device.Control{KeyType: device.KeyButton, KeyValue: 2}); ok {
		t.Error("failed profile left a subscription behind")
	}

	r.stick0.press(1, 1)
	if diff := cmp.Diff([]int64{1}, e.values()); diff != "" {
		t.Errorf("previous profile stopped reacting (-want +got):\n%s", diff)
	}
}

func TestActivateProfile_SwitchDropsOldSubscriptions(t *testing.T) {
	r := newRig(t)
	a := r.ctx.AddProfile("A")
	useDevices(t, a)
	ea := addEcho(t, a, 0, 1)

	b := r.ctx.AddProfile("B")
	useDevices(t, b)
	eb := addEcho(t, b, 0, 2)

	if rep, _ := r.ctx.ActivateProfile(a); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}
	if rep, _ := r.ctx.ActivateProfile(b); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}

	dev, _ := r.ctx.Inventory().Groups(device.Input)[0].Device(device.TypeJoystick, 0)
	for _, binding := range dev.Bindings() {
		if binding == ea.in {
			t.Fatal("A's binding still subscribed after switching to B")
		}
	}

	r.stick0.press(1, 1)
	r.stick0.press(2, 1)

	if len(ea.values()) != 0 {
		t.Errorf("inactive profile reacted: %v", ea.values())
	}
	if diff := cmp.Diff([]int64{1}, eb.values()); diff != "" {
		t.Errorf("active profile values mismatch (-want +got):\n%s", diff)
	}
}

func TestActivateProfile_GlobalAlongside(t *testing.T) {
	r := newRig(t)
	global := r.ctx.Global()
	useDevices(t, global)
	eg := addEcho(t, global, 1, 5)

	p := r.ctx.AddProfile("Game")
	ep := addEcho(t, p, 0, 1)

	// Global is not p's parent, so p resolves no devices of its own yet.
	report, _ := r.ctx.ActivateProfile(p)
	if report.OK() {
		t.Fatal("profile without device groups should fail to resolve")
	}
	if !errors.Is(report.Outcome.Err(), ErrNoDeviceGroup) {
		t.Errorf("failure = %v, want ErrNoDeviceGroup", report.Outcome.Err())
	}

	useDevices(t, p)
	if rep, _ := r.ctx.ActivateProfile(p); !rep.OK() {
		t.Fatalf("activation failed: %v", rep.Outcome.Err())
	}

	r.stick1.press(5, 1)
	r.stick0.press(1, 1)

	if len(eg.values()) != 1 || len(ep.values()) != 1 {
		t.Errorf("global=%v profile=%v, want one value each", eg.values(), ep.values())
	}
	if !r.stick1.listening() || !r.stick0.listening() {
		t.Error("referenced devices should be listening")
	}
}

func TestActivateProfile_GlobalItself(t *testing.T) {
	r := newRig(t)
	global := r.ctx.Global()
	useDevices(t, global)
	e := addEcho(t, global, 0, 1)

	report, err := r.ctx.ActivateProfile(global)
	if err != nil || !report.OK() {
		t.Fatalf("ActivateProfile(Global) = %v, %v", report.Outcome.Err(), err)
	}

	r.stick0.press(1, 1)
	if len(e.values()) != 1 {
		t.Errorf("Global reacted %d times, want 1", len(e.values()))
	}
}

func TestActivateProfile_UnreferencedDevicesStopped(t *testing.T) {
	r := newRig(t)
	a := r.ctx.AddProfile("A")
	useDevices(t, a)

	if rep, _ := r.ctx.ActivateProfile(a); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}
	if !r.stick0.listening() {
		t.Fatal("stick should listen while referenced")
	}

	b := r.ctx.AddProfile("B")
	if rep, _ := r.ctx.ActivateProfile(b); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}
	if r.stick0.listening() || r.stick1.listening() {
		t.Error("unreferenced devices should stop listening")
	}
}

func TestActivateProfile_ContractErrors(t *testing.T) {
	r := newRig(t)
	other := newRig(t)

	if _, err := r.ctx.ActivateProfile(nil); !errors.Is(err, ErrNilProfile) {
		t.Errorf("nil profile error = %v", err)
	}
	if _, err := r.ctx.ActivateProfile(other.ctx.AddProfile("X")); !errors.Is(err, ErrForeignProfile) {
		t.Errorf("foreign profile error = %v", err)
	}

	bare := NewContext(nil, plugin.NewCatalog())
	p := bare.AddProfile("No Global")
	if _, err := bare.ActivateProfile(p); !errors.Is(err, ErrGlobalMissing) {
		t.Errorf("missing global error = %v", err)
	}
}

func TestActivateByID(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("P")

	if _, err := r.ctx.ActivateByID(p.ID()); err != nil {
		t.Fatalf("ActivateByID() error = %v", err)
	}
	if _, err := r.ctx.ActivateByID("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("unknown id error = %v", err)
	}
	if len(r.rec.activations) != 1 {
		t.Errorf("recorded %d activations, want 1", len(r.rec.activations))
	}
}

// ===== Resolution =====

func TestLocalDevice_ParentChain(t *testing.T) {
	r := newRig(t)
	parent := r.ctx.AddProfile("Parent")
	useDevices(t, parent)
	child := parent.AddChild("Child")
	grandchild := child.AddChild("Grandchild")
	e := addEcho(t, grandchild, 1, 3)

	dev, err := grandchild.LocalDevice(e.in)
	if err != nil {
		t.Fatalf("LocalDevice() error = %v", err)
	}
	if dev.Identity().ProviderID != "pad" || dev.Number() != 1 {
		t.Errorf("resolved %+v", dev.Identity())
	}

	if err := child.SetDeviceGroup(device.Input, device.TypeJoystick, "elsewhere"); err != nil {
		t.Fatal(err)
	}
	if _, err := grandchild.LocalDevice(e.in); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("override to unknown provider error = %v", err)
	}

	_ = child.SetDeviceGroup(device.Input, device.TypeJoystick, "")
	if id, ok := grandchild.ResolveProvider(device.Input, device.TypeJoystick); !ok || id != "pad" {
		t.Errorf("cleared override should fall back to parent, got %q", id)
	}

	orphan := r.ctx.AddProfile("Orphan")
	if _, err := orphan.LocalDevice(e.in); !errors.Is(err, ErrNoDeviceGroup) {
		t.Errorf("no group error = %v", err)
	}
}

func TestSetDeviceGroup_Validation(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("P")

	if err := p.SetDeviceGroup("sideways", device.TypeJoystick, "pad"); !errors.Is(err, device.ErrUnknownDirection) {
		t.Errorf("bad direction error = %v", err)
	}
	if err := p.SetDeviceGroup(device.Input, device.TypeNone, "pad"); !errors.Is(err, ErrInvalidDeviceType) {
		t.Errorf("bad type error = %v", err)
	}
}

// ===== Dispatch =====

func TestDispatch_PanicRecovered(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("P")
	useDevices(t, p)
	pl := newPanicky()
	_ = pl.Core().SetBinding(device.Input, 0, button(0, 1))
	if err := p.AddPlugin(pl); err != nil {
		t.Fatal(err)
	}
	if rep, _ := r.ctx.ActivateProfile(p); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}

	r.stick0.press(1, 1)

	if r.rec.panics != 1 {
		t.Errorf("recorded %d panics, want 1", r.rec.panics)
	}
}

func TestRemovePlugin_StopsReactions(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("P")
	useDevices(t, p)
	e := addEcho(t, p, 0, 1)
	if rep, _ := r.ctx.ActivateProfile(p); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}

	if !p.RemovePlugin(e) {
		t.Fatal("RemovePlugin() = false")
	}
	if p.RemovePlugin(e) {
		t.Error("second RemovePlugin() should report false")
	}
	if err := p.AddPlugin(e); !errors.Is(err, plugin.ErrRemoved) {
		t.Errorf("re-adding removed plugin error = %v, want ErrRemoved", err)
	}
	if len(p.Plugins()) != 0 {
		t.Errorf("Plugins() = %d after rejected re-add, want 0", len(p.Plugins()))
	}
	other := r.ctx.AddProfile("Other")
	if err := other.AddPlugin(e); !errors.Is(err, plugin.ErrRemoved) {
		t.Errorf("adding removed plugin to another profile error = %v", err)
	}

	r.stick0.press(1, 1)
	if len(e.values()) != 0 {
		t.Error("removed behavior still reacts")
	}
	dev, _ := r.ctx.Inventory().Groups(device.Input)[0].Device(device.TypeJoystick, 0)
	if len(dev.Bindings()) != 0 {
		t.Error("removed behavior still subscribed")
	}
}

func TestAddPlugin_Duplicate(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("P")
	e := addEcho(t, p, 0, 1)

	if err := p.AddPlugin(e); !errors.Is(err, ErrPluginAttached) {
		t.Errorf("re-adding attached plugin error = %v", err)
	}

	cp, err := plugin.Duplicate(r.ctx.Catalog(), e)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.AddPlugin(cp); err != nil {
		t.Fatalf("AddPlugin(duplicate) error = %v", err)
	}
	if len(p.Plugins()) != 2 {
		t.Errorf("plugins = %d, want 2", len(p.Plugins()))
	}
	if cp.Core().List() == nil || cp.Core().Host() != plugin.Host(p) {
		t.Error("duplicate not attached to profile")
	}
}

// ===== Init =====

func TestInit_RescanReactivates(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("P")
	useDevices(t, p)
	e := addEcho(t, p, 0, 1)
	if rep, _ := r.ctx.ActivateProfile(p); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}

	if err := r.ctx.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if r.ctx.ActiveProfile() != p {
		t.Error("rescan dropped the active profile")
	}

	r.stick0.press(1, 1)
	if len(e.values()) != 1 {
		t.Errorf("reactions after rescan = %v, want one", e.values())
	}
}

func TestInit_RescanLostDeviceFallsBackToGlobal(t *testing.T) {
	r := newRig(t)
	global := r.ctx.Global()
	useDevices(t, global)
	ge := addEcho(t, global, 0, 1)

	p := r.ctx.AddProfile("P")
	useDevices(t, p)
	addEcho(t, p, 0, 2)
	addEcho(t, p, 1, 1)
	if rep, _ := r.ctx.ActivateProfile(p); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}

	r.unplugStick1()
	if err := r.ctx.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if r.ctx.ActiveProfile() != global {
		t.Fatalf("ActiveProfile() = %v, want Global", r.ctx.ActiveProfile())
	}
	if !r.stick0.listening() {
		t.Fatal("stick 0 should listen for Global after rescan")
	}
	r.stick0.press(1, 1)
	if len(ge.values()) != 1 {
		t.Errorf("Global reactions after rescan = %v, want one", ge.values())
	}
}

func TestInit_RescanGlobalFailsLeavesNothingActive(t *testing.T) {
	r := newRig(t)
	global := r.ctx.Global()
	useDevices(t, global)
	e0 := addEcho(t, global, 0, 1)
	addEcho(t, global, 1, 1)
	if rep, _ := r.ctx.ActivateProfile(global); !rep.OK() {
		t.Fatal(rep.Outcome.Err())
	}

	r.unplugStick1()
	if err := r.ctx.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if r.ctx.ActiveProfile() != nil {
		t.Errorf("ActiveProfile() = %v, want nil", r.ctx.ActiveProfile().Title())
	}
	if r.stick0.listening() {
		t.Error("stick 0 should not listen without an active profile")
	}
	r.stick0.press(1, 1)
	if len(e0.values()) != 0 {
		t.Errorf("reactions = %v, want none", e0.values())
	}

	// A later rescan with the device back restores nothing by itself, but
	// activation works again.
	r.prov.in["pad"] = device.ProviderReport{
		Title:   "Pad",
		Devices: map[int]device.Handle{0: r.stick0, 1: r.stick1},
	}
	if err := r.ctx.Init(); err != nil {
		t.Fatal(err)
	}
	if rep, _ := r.ctx.ActivateProfile(global); !rep.OK() {
		t.Fatalf("re-activation failed: %v", rep.Outcome.Err())
	}
	r.stick0.press(1, 1)
	if len(e0.values()) != 1 {
		t.Errorf("reactions after re-activation = %v, want one", e0.values())
	}
}

func TestClose(t *testing.T) {
	r := newRig(t)
	p := r.ctx.AddProfile("P")
	useDevices(t, p)
	_, _ = r.ctx.ActivateProfile(p)

	r.ctx.Close()

	if r.stick0.listening() || r.ctx.ActiveProfile() != nil {
		t.Error("Close should stop devices and clear the active profile")
	}
}
