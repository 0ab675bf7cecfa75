// Package legacy implements the transport.Connection interface for the
// legacy queue-based realtime service.
//
// The legacy service predates the enterprise envelope. Outbound payloads are
// wrapped in a Frame carrying the client identity and pushed to a shared
// requests queue; inbound frames are blocking-popped from a per-client
// responses queue and unwrapped before delivery. Connect and disconnect
// events are published on control channels so the service can track
// presence.
//
// # Broker Key Patterns
//
// With the default "quietspace" prefix:
//
//   - quietspace:requests - queue for outbound client frames
//   - quietspace:responses:{clientID} - queue for frames addressed to a client
//   - quietspace:control:connect - channel for connect events
//   - quietspace:control:disconnect - channel for disconnect events
package legacy
