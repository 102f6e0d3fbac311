// Package api provides the editor HTTP API and WebSocket event stream.
//
// It exposes the device inventory, the profile tree, behaviors and their
// binding slots, profile activation, and configuration save, export and
// import. Context events are relayed to WebSocket clients by the Hub, which
// doubles as the context's profile.Notifier.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Handlers that touch the configuration are serialised by the server, so
// the profile context always sees a single editor.
package api
