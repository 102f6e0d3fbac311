package profile

import (
	"time"

	"github.com/nerrad567/remapd/internal/device"
)

// InputEvent describes one input value delivered to a behavior.
type InputEvent struct {
	ProfileID  string
	Profile    string
	Plugin     string
	Provider   string
	Descriptor device.Descriptor
	Value      int64
	Latency    time.Duration
	Time       time.Time
}

// Recorder receives telemetry from the context. Calls arrive on delivery
// goroutines and must not block.
type Recorder interface {
	InputDelivered(ev InputEvent)
	ReactionPanicked(profile, plugin string)
	OutputFailed(profile string, err error)
	ProfileActivated(report ActivationReport)
}

type noopRecorder struct{}

func (noopRecorder) InputDelivered(InputEvent)          {}
func (noopRecorder) ReactionPanicked(string, string)    {}
func (noopRecorder) OutputFailed(string, error)         {}
func (noopRecorder) ProfileActivated(ActivationReport) {}

// EventType names a context event.
type EventType string

// Context events.
const (
	EventProfileActivated EventType = "profile.activated"
	EventActivationFailed EventType = "profile.activation_failed"
	EventConfigChanged    EventType = "config.changed"
	EventConfigRestored   EventType = "config.restored"
	EventDevicesChanged   EventType = "devices.changed"
)

// Event is published to the notifier after state changes.
type Event struct {
	Type      EventType `json:"type"`
	ProfileID string    `json:"profile_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Time      time.Time `json:"time"`
}

// Notifier receives context events. It is called synchronously from the
// goroutine that caused the change and must not call back into the context.
type Notifier func(Event)
