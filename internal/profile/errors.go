package profile

import "errors"

// Domain errors for profiles and the context.
var (
	// ErrProfileNotFound is returned when a profile id is unknown.
	ErrProfileNotFound = errors.New("profile: not found")

	// ErrNilProfile is returned when a nil profile is passed.
	ErrNilProfile = errors.New("profile: nil profile")

	// ErrForeignProfile is returned for a profile owned by another context.
	ErrForeignProfile = errors.New("profile: profile belongs to another context")

	// ErrGlobalMissing is returned when the Global profile does not exist.
	ErrGlobalMissing = errors.New("profile: global profile missing")

	// ErrCannotDelete is returned when deleting Global or the active profile.
	ErrCannotDelete = errors.New("profile: profile cannot be deleted")

	// ErrInvalidDeviceType is returned for an unset or unknown device type.
	ErrInvalidDeviceType = errors.New("profile: invalid device type")

	// ErrNoDeviceGroup is returned when a profile, and none of its
	// ancestors, references a provider for a direction and device type.
	ErrNoDeviceGroup = errors.New("profile: no device group assigned")

	// ErrPluginAttached is returned when adding a behavior that already
	// sits in a list.
	ErrPluginAttached = errors.New("profile: plugin already attached")

	// ErrPluginNotFound is returned when a behavior id is unknown.
	ErrPluginNotFound = errors.New("profile: plugin not found")

	// ErrUnsupportedSchema is returned for snapshots written by a newer release.
	ErrUnsupportedSchema = errors.New("profile: unsupported snapshot schema")

	// ErrNoSnapshot is returned by a repository that holds nothing yet.
	ErrNoSnapshot = errors.New("profile: no saved snapshot")
)
