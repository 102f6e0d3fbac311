// Package profile holds the profile tree and the Context that activates it.
//
// A Profile owns an ordered list of behaviors and references, per I/O
// direction and device type, the provider whose devices those behaviors may
// bind to. Children inherit references they do not set. A profile titled
// "Global" always exists and is active alongside every other profile.
//
// # Activation
//
//	ActivateProfile(p)
//	  ├─ Stage() every device
//	  ├─ activate Global ─┐
//	  ├─ activate p ──────┴─ plugin.Activate per behavior, into staged registries
//	  ├─ all OK?  no ──▶ Discard() every device, report failures, keep old profile
//	  └─ yes ──▶ swap live set, Commit() every device,
//	             Activate() referenced devices, Deactivate() the rest
//
// Reactions reach behaviors through Profile.Dispatch, which drops values for
// profiles that are not live and behaviors that were removed.
//
// # Persistence
//
// Snapshot flattens the tree into records; Restore rebuilds it through the
// plugin catalog and runs PostLoad once per behavior. SQLiteRepository and
// YAMLFileRepository store snapshots.
//
// # Thread safety
//
// Tree edits come from one owner goroutine (the API server). Activation,
// Init, Restore and Close are serialised by the Context. Delivery goroutines
// only read the inventory, profile device references and the live set.
package profile
