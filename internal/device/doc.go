// Package device models the physical devices remapd reads from and writes to,
// and the bindings that attach behavior slots to their controls.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                          Device Provider                            │
//	│   InputList() / OutputList() → map[providerID]ProviderReport        │
//	└──────────────────────────────┬──────────────────────────────────────┘
//	                               │ NewInventory
//	                               ▼
//	┌─────────────────────────────────────────────────────────────────────┐
//	│  Inventory                                                          │
//	│   ├── Group "vjoy"  (input)   Device joystick#0, joystick#1         │
//	│   ├── Group "kbd"   (input)   Device keyboard#0                     │
//	│   └── Group "vkbd"  (output)  Device keyboard#0                     │
//	└──────────────────────────────┬──────────────────────────────────────┘
//	                               │ AddDeviceBinding / WriteOutput
//	                               ▼
//	┌─────────────────────────────────────────────────────────────────────┐
//	│  Device registry: map[Control]*Binding (live + staged)              │
//	│   provider callback ──▶ deliver ──▶ Binding.Fire ──▶ reaction       │
//	└─────────────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Descriptor: plain-value description of which control a slot uses
//   - Binding: a behavior slot (descriptor + direction + reaction wiring)
//   - Device: one physical device and its binding registry
//   - Group: the devices reported by one provider for one direction
//   - Inventory: every group, rebuilt from the provider on Init
//
// # Numbering
//
// A Device's Number is its position among devices of the same type inside
// its group, which is what Descriptor.DeviceNumber refers to. A profile
// therefore binds "joystick 0 of whichever provider it uses", so switching
// provider does not rewrite every binding.
//
// # Thread Safety
//
// Registration (activation thread) and delivery (provider goroutines) are
// serialized by the Device's RWMutex. Reactions run with the read lock held,
// so Commit and Deactivate wait for in-flight reactions and no reaction
// fires on a binding that has been replaced or removed.
package device
