package builtin

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/nerrad567/remapd/internal/device"
	"github.com/nerrad567/remapd/internal/plugin"
)

// AxisToAxis mirrors one axis onto another.
//
// Deadzone is a percentage of the half range around centre that reads as
// zero; the remaining travel is rescaled so full deflection still reaches
// the end stops. Sensitivity scales the result before clamping.
type AxisToAxis struct {
	plugin.Base

	in  *device.Binding
	out *device.Binding

	mu          sync.RWMutex
	invert      bool
	deadzone    float64
	sensitivity float64
}

// NewAxisToAxis builds a one-in one-out axis behavior.
func NewAxisToAxis() plugin.Plugin {
	p := &AxisToAxis{sensitivity: 1}
	p.Init("Axis to Axis")
	p.in = p.InitializeInputMapping(p.onInput)
	p.out = p.InitializeOutputMapping()
	return p
}

// Kind implements plugin.Plugin.
func (*AxisToAxis) Kind() string { return KindAxisToAxis }

func (p *AxisToAxis) onInput(value int64) {
	p.WriteOutput(context.Background(), p.out, p.Transform(value))
}

// Transform applies the configured curve to an axis value.
func (p *AxisToAxis) Transform(value int64) int64 {
	p.mu.RLock()
	invert, deadzone, sensitivity := p.invert, p.deadzone, p.sensitivity
	p.mu.RUnlock()

	v := float64(clampAxis(value))
	if invert {
		v = -v
	}

	if deadzone > 0 {
		limit := float64(AxisMax) * deadzone / 100
		mag := math.Abs(v)
		if mag <= limit {
			return 0
		}
		v = math.Copysign((mag-limit)/(float64(AxisMax)-limit)*float64(AxisMax), v)
	}

	return clampAxis(int64(math.Round(v * sensitivity)))
}

// Settings implements plugin.Configurable.
func (p *AxisToAxis) Settings() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return map[string]any{
		"invert":      p.invert,
		"deadzone":    p.deadzone,
		"sensitivity": p.sensitivity,
	}
}

// ApplySettings implements plugin.Configurable. Missing keys keep their
// current value.
func (p *AxisToAxis) ApplySettings(s map[string]any) error {
	p.mu.RLock()
	invert, deadzone, sensitivity := p.invert, p.deadzone, p.sensitivity
	p.mu.RUnlock()

	var err error
	if v, ok := s["invert"]; ok {
		if invert, err = toBool("invert", v); err != nil {
			return err
		}
	}
	if v, ok := s["deadzone"]; ok {
		if deadzone, err = toFloat("deadzone", v); err != nil {
			return err
		}
		if deadzone < 0 || deadzone >= 100 {
			return fmt.Errorf("%w: deadzone must be in [0, 100), got %v", plugin.ErrInvalidSetting, deadzone)
		}
	}
	if v, ok := s["sensitivity"]; ok {
		if sensitivity, err = toFloat("sensitivity", v); err != nil {
			return err
		}
		if sensitivity <= 0 {
			return fmt.Errorf("%w: sensitivity must be positive, got %v", plugin.ErrInvalidSetting, sensitivity)
		}
	}

	p.mu.Lock()
	p.invert, p.deadzone, p.sensitivity = invert, deadzone, sensitivity
	p.mu.Unlock()
	return nil
}
