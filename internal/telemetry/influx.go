package telemetry

import (
	"time"

	"github.com/nerrad567/remapd/internal/infrastructure/influxdb"
	"github.com/nerrad567/remapd/internal/profile"
)

// PointWriter is the part of *influxdb.Client the sink uses.
type PointWriter interface {
	WriteInputEvent(ev influxdb.InputEvent)
	WriteActivation(ev influxdb.ActivationEvent)
}

// InfluxSink writes input events and activations to InfluxDB. It
// implements profile.Recorder. Writes are batched by the client, so calls
// never block the delivery goroutine.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a sink on w.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// InputDelivered implements profile.Recorder.
func (s *InfluxSink) InputDelivered(ev profile.InputEvent) {
	s.w.WriteInputEvent(influxdb.InputEvent{
		Provider:   ev.Provider,
		DeviceType: string(ev.Descriptor.DeviceType),
		Number:     ev.Descriptor.DeviceNumber,
		KeyType:    string(ev.Descriptor.KeyType),
		KeyValue:   ev.Descriptor.KeyValue,
		Value:      ev.Value,
		Profile:    ev.Profile,
		Time:       ev.Time,
	})
}

// ReactionPanicked implements profile.Recorder; panics go to Prometheus only.
func (s *InfluxSink) ReactionPanicked(string, string) {}

// OutputFailed implements profile.Recorder; failures go to Prometheus only.
func (s *InfluxSink) OutputFailed(string, error) {}

// ProfileActivated implements profile.Recorder.
func (s *InfluxSink) ProfileActivated(rep profile.ActivationReport) {
	s.w.WriteActivation(influxdb.ActivationEvent{
		Profile:  rep.Profile,
		OK:       rep.OK(),
		Failures: len(rep.Outcome.Failures),
		Duration: rep.Duration,
		Time:     time.Now(),
	})
}
