package device

import "fmt"

// DeviceType is the category of a physical device. The zero value means
// "unset" and never resolves.
type DeviceType string

// Device categories.
const (
	TypeNone     DeviceType = ""
	TypeKeyboard DeviceType = "keyboard"
	TypeMouse    DeviceType = "mouse"
	TypeJoystick DeviceType = "joystick"
)

// AllDeviceTypes lists the resolvable categories in display order.
var AllDeviceTypes = []DeviceType{TypeKeyboard, TypeMouse, TypeJoystick}

// Valid reports whether t is a known, set category.
func (t DeviceType) Valid() bool {
	switch t {
	case TypeKeyboard, TypeMouse, TypeJoystick:
		return true
	}
	return false
}

// KeyType identifies the kind of control on a device.
type KeyType string

// Control kinds.
const (
	KeyButton KeyType = "button"
	KeyAxis   KeyType = "axis"
	KeyPOV    KeyType = "pov"
)

// Valid reports whether k is a known control kind.
func (k KeyType) Valid() bool {
	switch k {
	case KeyButton, KeyAxis, KeyPOV:
		return true
	}
	return false
}

// Direction says whether data flows from a device (Input) or to it (Output).
type Direction string

// I/O directions.
const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Valid reports whether d is Input or Output.
func (d Direction) Valid() bool {
	return d == Input || d == Output
}

// ParseDirection converts a string to a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDirection, s)
	}
	return d, nil
}

// Control addresses one control on a device. It is the registry key.
type Control struct {
	KeyType     KeyType `json:"key_type" yaml:"key_type"`
	KeyValue    int     `json:"key_value" yaml:"key_value"`
	KeySubValue int     `json:"key_sub_value" yaml:"key_sub_value"`
}

func (c Control) String() string {
	if c.KeySubValue != 0 {
		return fmt.Sprintf("%s %d.%d", c.KeyType, c.KeyValue, c.KeySubValue)
	}
	return fmt.Sprintf("%s %d", c.KeyType, c.KeyValue)
}

// Descriptor holds the persisted resolution fields of a binding slot.
// It is a plain value: copying it never copies runtime wiring.
type Descriptor struct {
	IsBound      bool       `json:"is_bound" yaml:"is_bound"`
	DeviceType   DeviceType `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	DeviceNumber int        `json:"device_number" yaml:"device_number"`
	KeyType      KeyType    `json:"key_type,omitempty" yaml:"key_type,omitempty"`
	KeyValue     int        `json:"key_value" yaml:"key_value"`
	KeySubValue  int        `json:"key_sub_value" yaml:"key_sub_value"`
}

// Control returns the control coordinates the descriptor points at.
func (d Descriptor) Control() Control {
	return Control{KeyType: d.KeyType, KeyValue: d.KeyValue, KeySubValue: d.KeySubValue}
}

// Resolvable reports whether the descriptor should be matched to a device.
// Unbound slots and slots without a device type are skipped.
func (d Descriptor) Resolvable() bool {
	return d.IsBound && d.DeviceType != TypeNone
}

func (d Descriptor) String() string {
	if !d.IsBound {
		return "unbound"
	}
	return fmt.Sprintf("%s#%d %s", d.DeviceType, d.DeviceNumber, d.Control())
}
