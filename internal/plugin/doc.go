// Package plugin defines the contract every remapping behavior satisfies.
//
// A behavior declares a fixed list of input and output slots at construction
// and reacts to input values by writing outputs. Slot position is the slot's
// identity across save/load cycles, so the count and order never change.
//
// # Lifecycle
//
//	construct ──▶ PostLoad(host, list) ──▶ Activate ──▶ active ──▶ Remove
//	               (exactly once)           (per profile switch)
//
// Construction calls InitializeInputMapping and InitializeOutputMapping.
// PostLoad re-links the transient back-references a store never persists
// (owning profile, containing list, reaction dispatch) and compacts legacy
// doubled slot lists. Activate resolves every bound input slot against the
// host's local devices and reports per-slot failures in an Outcome.
//
// # Partial success
//
// Activation does not roll back subscriptions that succeeded before a later
// slot failed. Outcome.OK is the logical AND of all attempts; the profile
// layer stages device registries so a failed profile switch discards them.
//
// # Concrete behaviors
//
// Concrete behaviors embed Base and register a factory with a Catalog:
//
//	type Invert struct {
//	    plugin.Base
//	    in, out *device.Binding
//	}
//
//	func (*Invert) Kind() string { return "invert" }
//
//	func NewInvert() plugin.Plugin {
//	    p := &Invert{}
//	    p.Init("Invert")
//	    p.in = p.InitializeInputMapping(p.onInput)
//	    p.out = p.InitializeOutputMapping()
//	    return p
//	}
package plugin
