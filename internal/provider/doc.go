// Package provider holds the in-process device provider and the combinator
// that merges several providers into the one a profile.Context consumes.
//
// Hardware and network providers live in subpackages:
//
//   - mqttprovider: devices bridged over MQTT by remote agents
//   - hidprovider: raw HID joysticks and gamepads (read-only)
//
// # Provider IDs
//
// Every provider reports its devices under one or more provider IDs. Profiles
// reference those IDs per direction and device type, so an ID must stay
// stable across restarts. Multi keeps the first report seen for an ID and
// logs the collision.
package provider
