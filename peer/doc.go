// Package peer implements the coordinator of spec.md §4.G: it accepts
// inbound sockets, dials outbound, drives the Noise-XX handshake and
// record-layer session for each, deduplicates connections per peer_id,
// routes received messages to observers, and fans out broadcasts. It owns
// no file-transfer or clipboard semantics; those are driven externally
// through MessageReceived.
package peer
