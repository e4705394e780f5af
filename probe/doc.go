// Package probe implements the handshake engine for the pan-tilt unit's serial protocol.
//
// A Handshake drives one transport.Port through
//
//	Idle -> Syncing -> Initializing -> Ready
//
// ending in Ready, Degraded or Failed. Sending goes through a paced Sender that
// flushes one byte at a time with a delay policy tuned for the device. Receiving
// goes through a deadline-bounded Receiver that reassembles marker-delimited
// frames. Initialization walks an ordered list of named steps, from a plain
// initialization send to line-control pulses and a direct heartbeat, so new
// wake-up heuristics are additions to the step registry.
//
// Every byte placed on or taken off the wire is appended to a transaction Log.
// Expected responses are compared with frame.Compare for diagnostics only; any
// non-empty reply counts as a sign of life.
//
// A Monitor polls the same port on a fixed cadence to surface unsolicited bytes.
// Wrap the port in a transport.Shared when the Monitor runs next to a
// Handshake or operator sends.
package probe
