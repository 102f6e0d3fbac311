package plugin

import "errors"

// Domain errors for behaviors.
var (
	// ErrAlreadyLoaded is returned when PostLoad runs a second time.
	ErrAlreadyLoaded = errors.New("plugin: already loaded")

	// ErrRemoved is returned when attaching a behavior after Remove.
	ErrRemoved = errors.New("plugin: behavior was removed")

	// ErrSlotCountMismatch is returned when a stored slot list is longer
	// than declared but is not a legacy doubled list.
	ErrSlotCountMismatch = errors.New("plugin: stored slot count does not match declaration")

	// ErrSlotOutOfRange is returned when a slot index is not declared.
	ErrSlotOutOfRange = errors.New("plugin: slot index out of range")

	// ErrUnknownKind is returned when the catalog has no factory for a kind.
	ErrUnknownKind = errors.New("plugin: unknown kind")

	// ErrDuplicateKind is returned when a kind is registered twice.
	ErrDuplicateKind = errors.New("plugin: kind already registered")

	// ErrInvalidSetting is returned by ApplySettings for a bad value.
	ErrInvalidSetting = errors.New("plugin: invalid setting")

	// ErrNoHost is returned when resolution is attempted before PostLoad.
	ErrNoHost = errors.New("plugin: not attached to a profile")
)
