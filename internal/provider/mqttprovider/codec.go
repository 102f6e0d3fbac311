package mqttprovider

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/nerrad567/remapd/internal/device"
)

// deviceSpec is one entry of a discovery document.
type deviceSpec struct {
	Type  device.DeviceType
	Title string
}

// discovery is a decoded discovery document:
//
//	{
//	  "title": "Desk bridge",
//	  "inputs":  [{"type": "joystick", "title": "Throttle"}],
//	  "outputs": [{"type": "keyboard", "title": "Virtual keys"}]
//	}
type discovery struct {
	Title   string
	Inputs  []deviceSpec
	Outputs []deviceSpec
}

func decodeDiscovery(payload []byte) (discovery, error) {
	if !gjson.ValidBytes(payload) {
		return discovery{}, fmt.Errorf("%w: discovery is not valid JSON", ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return discovery{}, fmt.Errorf("%w: discovery must be an object", ErrInvalidPayload)
	}

	d := discovery{Title: doc.Get("title").String()}
	d.Inputs = decodeSpecs(doc.Get("inputs"))
	d.Outputs = decodeSpecs(doc.Get("outputs"))
	return d, nil
}

// decodeSpecs keeps entries with a known device type in document order.
func decodeSpecs(list gjson.Result) []deviceSpec {
	var out []deviceSpec
	for _, entry := range list.Array() {
		t := device.DeviceType(entry.Get("type").String())
		if !t.Valid() {
			continue
		}
		title := entry.Get("title").String()
		if title == "" {
			title = string(t)
		}
		out = append(out, deviceSpec{Type: t, Title: title})
	}
	return out
}

// controlValue is one control report of a state message.
type controlValue struct {
	Control device.Control
	Value   int64
}

// decodeState accepts a single report or a batch:
//
//	{"key_type": "button", "key_value": 3, "value": 1}
//	{"controls": [{"key_type": "axis", "key_value": 0, "value": -1200}, ...]}
func decodeState(payload []byte) ([]controlValue, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: state is not valid JSON", ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(payload)

	entries := []gjson.Result{doc}
	if batch := doc.Get("controls"); batch.IsArray() {
		entries = batch.Array()
	}

	out := make([]controlValue, 0, len(entries))
	for _, e := range entries {
		kt := device.KeyType(e.Get("key_type").String())
		if !kt.Valid() {
			return nil, fmt.Errorf("%w: key_type %q", ErrInvalidPayload, kt)
		}
		value := e.Get("value")
		if !value.Exists() {
			return nil, fmt.Errorf("%w: missing value", ErrInvalidPayload)
		}
		out = append(out, controlValue{
			Control: device.Control{
				KeyType:     kt,
				KeyValue:    int(e.Get("key_value").Int()),
				KeySubValue: int(e.Get("key_sub_value").Int()),
			},
			Value: value.Int(),
		})
	}
	return out, nil
}

// encodeCommand builds an output write message.
func encodeCommand(ctrl device.Control, value int64, at time.Time) ([]byte, error) {
	doc := []byte(`{}`)
	var err error
	for _, field := range []struct {
		path  string
		value any
	}{
		{"key_type", string(ctrl.KeyType)},
		{"key_value", ctrl.KeyValue},
		{"key_sub_value", ctrl.KeySubValue},
		{"value", value},
		{"ts", at.UTC().Format(time.RFC3339Nano)},
	} {
		if doc, err = sjson.SetBytes(doc, field.path, field.value); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", field.path, err)
		}
	}
	return doc, nil
}
