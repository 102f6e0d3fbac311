package device

import "errors"

// Domain-specific errors for device resolution and registration.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotFound is a resolution failure: no provider group is
	// assigned, or the device number is out of range.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrIdentityMismatch is a resolution failure: the binding's
	// type/number/direction does not describe this device.
	ErrIdentityMismatch = errors.New("device: binding does not match device identity")

	// ErrSubscriptionConflict means another binding already claims the control.
	ErrSubscriptionConflict = errors.New("device: control already claimed by another binding")

	// ErrUnbound is returned when registering a binding that is not bound.
	ErrUnbound = errors.New("device: binding is not bound")

	// ErrUnknownDirection is returned for directions other than input/output.
	ErrUnknownDirection = errors.New("device: unknown I/O direction")

	// ErrListenFailed wraps provider errors when a device starts listening.
	ErrListenFailed = errors.New("device: provider listen failed")

	// ErrReadOnly is returned by handles that cannot accept writes.
	ErrReadOnly = errors.New("device: device is read-only")
)
