package mqttprovider

import "errors"

// Domain errors for MQTT-bridged devices.
var (
	// ErrInvalidPayload is returned for discovery or state messages that
	// cannot be decoded.
	ErrInvalidPayload = errors.New("mqttprovider: invalid payload")

	// ErrUnknownDevice is returned for state reports of undiscovered devices.
	ErrUnknownDevice = errors.New("mqttprovider: unknown device")
)
