package provider

import "errors"

// Domain errors for the in-process provider.
var (
	// ErrNoListener is returned by Emit when nobody listens on the device.
	ErrNoListener = errors.New("provider: device is not listening")

	// ErrInvalidDevice is returned for a device with an unknown type.
	ErrInvalidDevice = errors.New("provider: invalid device")
)
