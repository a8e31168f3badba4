// Package protocol owns the error kinds shared by the wire layers.
//
// Ownership boundary:
// - TransportError: link open/send/receive failures
// - ProtocolError: chunk sequencing and frame header mismatches
// - StatusError: non-OK status reported by the device
//
// Wire primitives live in the chunk and command subpackages.
package protocol
