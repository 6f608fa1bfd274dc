// Package protocol implements the binary wire format used to ship mutation
// scripts to a remote element tree and to carry the messages it emits back.
//
// # Wire Format
//
// Every message is a frame with a 6-byte header:
//
//	┌─────────────┬──────────────┬───────────────────────────────┐
//	│ Frame Type  │ Flags        │ Payload Length                │
//	│ (1 byte)    │ (1 byte)     │ (4 bytes, big-endian)         │
//	└─────────────┴──────────────┴───────────────────────────────┘
//
// # Frame Types
//
//   - FrameScript (0x01): ops of one reconciliation pass, server to client
//   - FrameEvent (0x02): a message emitted by an element, client to server
//   - FrameError (0x03): error report, either direction
//   - FrameAction (0x04): an action dispatched to the application, written
//     to journals only
//
// # Encoding
//
//   - Varint: unsigned integers, protobuf-style
//   - ZigZag: signed integers as unsigned varints
//   - Length-prefixed: strings and byte arrays prefixed with a varint length
//   - Paths: a varint count followed by one varint per id
//
// Payloads are tagged values (null, bool, int, float, string, bytes, array,
// object) so the same encoding serves events on the wire and entries in a
// journal.
//
// # Limits
//
// Decoders reject length prefixes larger than DefaultMaxAllocation,
// collections larger than MaxCollectionCount and payloads nested deeper than
// MaxValueDepth.
package protocol
