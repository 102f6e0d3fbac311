package hidprovider

import (
	"github.com/nerrad567/remapd/internal/device"
)

// HID usages of the Generic Desktop page that identify game controllers.
const (
	usagePageGenericDesktop = 0x01
	usageJoystick           = 0x04
	usageGamepad            = 0x05
)

// Axis range reported for report bytes.
const (
	axisMin = -32768
	axisMax = 32767
)

// event is one control change decoded from a report.
type event struct {
	ctrl  device.Control
	value int64
}

// diffReport compares two input reports without a report descriptor.
//
// Every byte that changed is reported twice: as axis <offset>, scaled from
// 0..255 to the axis range, and as one button per changed bit, numbered
// offset*8+bit. Behaviors bind to whichever view matches the device. Bytes
// past the end of prev count as changed from zero.
func diffReport(prev, cur []byte) []event {
	var out []event
	for i, b := range cur {
		var old byte
		if i < len(prev) {
			old = prev[i]
		}
		if b == old {
			continue
		}
		out = append(out, event{
			ctrl:  device.Control{KeyType: device.KeyAxis, KeyValue: i},
			value: scaleAxis(b),
		})
		for bit := 0; bit < 8; bit++ {
			mask := byte(1) << bit
			if (old^b)&mask == 0 {
				continue
			}
			var v int64
			if b&mask != 0 {
				v = 1
			}
			out = append(out, event{
				ctrl:  device.Control{KeyType: device.KeyButton, KeyValue: i*8 + bit},
				value: v,
			})
		}
	}
	return out
}

func scaleAxis(b byte) int64 {
	return int64(b)*(axisMax-axisMin)/255 + axisMin
}
