// Package frame implements the pan-tilt unit's byte-oriented frame format.
//
// A frame on the wire is
//
//	START(0x3C) <body> END(0x7C)
//
// The byte 0x5C appears around control fields inside captured bodies. It is kept
// verbatim as a structural byte; there is no escape/unescape step, no checksum
// and no length field.
//
// The package also carries the table of known outbound commands (sync,
// initialization, alternate-initialization, heartbeat), their diagnostic
// expected responses, and the response matcher used to diff a received frame
// against an expectation.
package frame
