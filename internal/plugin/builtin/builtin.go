package builtin

import (
	"fmt"

	"github.com/nerrad567/remapd/internal/plugin"
)

// Behavior kinds.
const (
	KindButtonToButton = "button_to_button"
	KindAxisToAxis     = "axis_to_axis"
	KindScript         = "script"
)

// Axis range shared by every provider.
const (
	AxisMin int64 = -32768
	AxisMax int64 = 32767
)

// Register adds every built-in behavior to cat.
func Register(cat *plugin.Catalog) error {
	factories := map[string]plugin.Factory{
		KindButtonToButton: NewButtonToButton,
		KindAxisToAxis:     NewAxisToAxis,
		KindScript:         NewScript,
	}
	for kind, f := range factories {
		if err := cat.Register(kind, f); err != nil {
			return err
		}
	}
	return nil
}

func clampAxis(v int64) int64 {
	if v < AxisMin {
		return AxisMin
	}
	if v > AxisMax {
		return AxisMax
	}
	return v
}

// Settings arrive from YAML, JSON or SQLite, so numbers may be any of
// these types.
func toFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number, got %T", plugin.ErrInvalidSetting, key, v)
	}
}

func toBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean, got %T", plugin.ErrInvalidSetting, key, v)
	}
	return b, nil
}
