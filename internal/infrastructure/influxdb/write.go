package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by remapd.
const (
	MeasurementInputEvent = "input_event"
	MeasurementActivation = "profile_activation"
)

// InputEvent is one control value delivered by a physical device.
type InputEvent struct {
	Provider   string
	DeviceType string
	Number     int
	KeyType    string
	KeyValue   int
	Value      int64
	Profile    string
	Time       time.Time
}

// ActivationEvent summarises one profile activation attempt.
type ActivationEvent struct {
	Profile  string
	OK       bool
	Failures int
	Duration time.Duration
	Time     time.Time
}

// WriteInputEvent records a delivered control value when input recording
// is on. Input events arrive at device rate, so they are opt-in.
func (c *Client) WriteInputEvent(ev InputEvent) {
	if !c.recordInputs {
		c.dropped.Add(1)
		return
	}
	c.write(inputEventPoint(ev))
}

// WriteActivation records the outcome of a profile activation.
func (c *Client) WriteActivation(ev ActivationEvent) {
	c.write(activationPoint(ev))
}

func inputEventPoint(ev InputEvent) *write.Point {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	tags := map[string]string{
		"provider":    ev.Provider,
		"device_type": ev.DeviceType,
		"key_type":    ev.KeyType,
	}
	if ev.Profile != "" {
		tags["profile"] = ev.Profile
	}
	return write.NewPoint(MeasurementInputEvent, tags,
		map[string]any{
			"device_number": ev.Number,
			"key_value":     ev.KeyValue,
			"value":         ev.Value,
		},
		ts,
	)
}

func activationPoint(ev ActivationEvent) *write.Point {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	result := "ok"
	if !ev.OK {
		result = "failed"
	}
	return write.NewPoint(MeasurementActivation,
		map[string]string{
			"profile": ev.Profile,
			"result":  result,
		},
		map[string]any{
			"failures":    ev.Failures,
			"duration_ms": ev.Duration.Milliseconds(),
		},
		ts,
	)
}
