package device

import (
	"errors"
	"testing"
)

type fakeProvider struct {
	inputs, outputs map[string]ProviderReport
}

func (p fakeProvider) InputList() map[string]ProviderReport  { return p.inputs }
func (p fakeProvider) OutputList() map[string]ProviderReport { return p.outputs }

func TestBuildGroups(t *testing.T) {
	reports := map[string]ProviderReport{
		"zeta": {Title: "Zeta", Devices: map[int]Handle{
			0: &fakeHandle{title: "KB", typ: TypeKeyboard},
		}},
		"alpha": {ProviderID: "alpha", Title: "Alpha", Devices: map[int]Handle{
			7: &fakeHandle{title: "Stick B", typ: TypeJoystick},
			2: &fakeHandle{title: "Stick A", typ: TypeJoystick},
			5: &fakeHandle{title: "Mouse", typ: TypeMouse},
		}},
	}

	groups := BuildGroups(reports, Input)

	if len(groups) != 2 || groups[0].ProviderID != "alpha" || groups[1].ProviderID != "zeta" {
		t.Fatalf("groups not sorted by provider id: %+v", groups)
	}
	if groups[1].ProviderID != "zeta" {
		t.Error("empty ProviderID should fall back to the map key")
	}

	alpha := groups[0]
	want := []struct {
		title  string
		typ    DeviceType
		index  int
		number int
	}{
		{"Stick A", TypeJoystick, 2, 0},
		{"Mouse", TypeMouse, 5, 0},
		{"Stick B", TypeJoystick, 7, 1},
	}
	if len(alpha.Devices) != len(want) {
		t.Fatalf("alpha has %d devices, want %d", len(alpha.Devices), len(want))
	}
	for i, w := range want {
		id := alpha.Devices[i].Identity()
		if id.Title != w.title || id.Type != w.typ || id.Index != w.index || id.Number != w.number {
			t.Errorf("device %d = %+v, want %+v", i, id, w)
		}
		if id.Direction != Input || id.ProviderID != "alpha" {
			t.Errorf("device %d identity = %+v", i, id)
		}
	}

	if alpha.CountOf(TypeJoystick) != 2 || alpha.CountOf(TypeKeyboard) != 0 {
		t.Error("CountOf mismatch")
	}
}

func TestGroup_Device(t *testing.T) {
	g := BuildGroups(map[string]ProviderReport{
		"p": {Devices: map[int]Handle{
			0: &fakeHandle{typ: TypeJoystick},
			1: &fakeHandle{typ: TypeJoystick},
		}},
	}, Input)[0]

	d, err := g.Device(TypeJoystick, 1)
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if d.Identity().Index != 1 {
		t.Errorf("Device(joystick, 1) index = %d", d.Identity().Index)
	}

	for _, tc := range []struct {
		typ DeviceType
		n   int
	}{{TypeJoystick, 2}, {TypeKeyboard, 0}, {TypeNone, 0}} {
		if _, err := g.Device(tc.typ, tc.n); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("Device(%s, %d) error = %v, want ErrDeviceNotFound", tc.typ, tc.n, err)
		}
	}
}

func TestInventory(t *testing.T) {
	inv := NewInventory(fakeProvider{
		inputs: map[string]ProviderReport{
			"in": {Devices: map[int]Handle{0: &fakeHandle{typ: TypeJoystick}}},
		},
		outputs: map[string]ProviderReport{
			"out": {Devices: map[int]Handle{0: &fakeHandle{typ: TypeKeyboard}, 1: &fakeHandle{typ: TypeMouse}}},
		},
	})

	if len(inv.Groups(Input)) != 1 || len(inv.Groups(Output)) != 1 {
		t.Fatalf("groups = %d/%d, want 1/1", len(inv.Groups(Input)), len(inv.Groups(Output)))
	}
	if _, ok := inv.Group(Output, "out"); !ok {
		t.Error("Group(Output, out) not found")
	}
	if _, ok := inv.Group(Input, "out"); ok {
		t.Error("Group(Input, out) should not exist")
	}
	if got := len(inv.Devices()); got != 3 {
		t.Errorf("Devices() = %d, want 3", got)
	}
	if g, _ := inv.Group(Output, "out"); g.Devices[0].Direction() != Output {
		t.Error("output group devices should have Output direction")
	}

	empty := NewInventory(nil)
	if len(empty.Devices()) != 0 {
		t.Error("nil provider should give an empty inventory")
	}
	var nilInv *Inventory
	if nilInv.Groups(Input) != nil || nilInv.Devices() != nil {
		t.Error("nil inventory should be empty")
	}
}
