// Package builtin holds the behaviors shipped with remapd.
//
//   - button_to_button: copies a button state, optionally inverted.
//   - axis_to_axis: copies an axis with invert, deadzone and sensitivity.
//   - script: runs a sandboxed Lua function for each input change.
//
// Register adds all of them to a catalog.
package builtin
