// Package file implements the chunked, resumable file-transfer engine: a
// sender side that streams a file in fixed-size chunks on request, and a
// receiver side that verifies each chunk, writes it at its offset, and
// checkpoints progress so an interrupted transfer can resume without
// re-fetching already-durable chunks.
//
// The engine owns no network connection itself. It is driven by a Sender
// (typically a *peer.Manager) that delivers typed messages to a specific
// peer or to all connected peers, and it is fed inbound messages through
// HandleMessage as the Sender's session loops receive them.
package file
