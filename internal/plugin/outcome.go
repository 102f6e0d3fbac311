package plugin

import (
	"errors"
	"fmt"

	"github.com/nerrad567/remapd/internal/device"
)

// Failure is one input slot that could not be subscribed.
type Failure struct {
	PluginID   string            `json:"plugin_id"`
	Plugin     string            `json:"plugin"`
	Slot       int               `json:"slot"`
	Descriptor device.Descriptor `json:"descriptor"`
	Reason     string            `json:"reason"`
	Err        error             `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s input %d (%s): %v", f.Plugin, f.Slot, f.Descriptor, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Outcome is the structured result of activating one or more behaviors.
// Subscriptions that succeeded stay in place even when others failed.
type Outcome struct {
	Failures []Failure `json:"failures,omitempty"`
}

// OK is the logical AND of every subscription attempt.
func (o Outcome) OK() bool {
	return len(o.Failures) == 0
}

// Merge appends other's failures.
func (o *Outcome) Merge(other Outcome) {
	o.Failures = append(o.Failures, other.Failures...)
}

// Err joins every failure, or returns nil when the outcome is OK.
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	errs := make([]error, len(o.Failures))
	for i, f := range o.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Activate runs p's OnActivate hook and subscribes its bound input slots
// to the devices of p's host. Unbound slots are skipped.
func Activate(p Plugin) Outcome {
	p.OnActivate()
	return p.Core().SubscribeInputs()
}

// SubscribeInputs resolves every bound input slot through the host and
// registers it on the resolved device.
func (b *Base) SubscribeInputs() Outcome {
	var out Outcome
	host := b.Host()

	for slot, binding := range b.inputs {
		desc := binding.Descriptor()
		if !desc.IsBound {
			continue
		}

		err := ErrNoHost
		if host != nil {
			var dev *device.Device
			dev, err = host.LocalDevice(binding)
			if err == nil {
				err = dev.AddDeviceBinding(binding)
			}
		}
		if err != nil {
			out.Failures = append(out.Failures, Failure{
				PluginID:   b.id,
				Plugin:     b.Title(),
				Slot:       slot,
				Descriptor: desc,
				Reason:     err.Error(),
				Err:        err,
			})
		}
	}
	return out
}
