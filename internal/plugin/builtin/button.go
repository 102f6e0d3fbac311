package builtin

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// ButtonToButton mirrors one button onto another.
type ButtonToButton struct {
	plugin.Base

	in  *device.Binding
	out *device.Binding

	invert atomic.Bool
}

// NewButtonToButton builds a one-in one-out button behavior.
func NewButtonToButton() plugin.Plugin {
	p := &ButtonToButton{}
	p.Init("Button to Button")
	p.in = p.InitializeInputMapping(p.onInput)
	p.out = p.InitializeOutputMapping()
	return p
}

// Kind implements plugin.Plugin.
func (*ButtonToButton) Kind() string { return KindButtonToButton }

func (p *ButtonToButton) onInput(value int64) {
	pressed := value != 0
	if p.invert.Load() {
		pressed = !pressed
	}
	var out int64
	if pressed {
		out = 1
	}
	p.WriteOutput(context.Background(), p.out, out)
}

// Settings implements plugin.Configurable.
func (p *ButtonToButton) Settings() map[string]any {
	return map[string]any{"invert": p.invert.Load()}
}

// ApplySettings implements plugin.Configurable.
func (p *ButtonToButton) ApplySettings(s map[string]any) error {
	if v, ok := s["invert"]; ok {
		b, err := toBool("invert", v)
		if err != nil {
			return err
		}
		p.invert.Store(b)
	}
	return nil
}
