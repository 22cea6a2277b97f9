// Package noise drives the Noise-XX handshake that authenticates a lanshare
// peer connection and derives its forward-secret transport keys.
//
// The three core Noise messages are exchanged via github.com/flynn/noise
// with the DH25519/AESGCM/SHA256 cipher suite. Each of the two payload
// carrying messages additionally transports an Ed25519 signature over the
// sender's long-term identity, binding the ephemeral handshake to a stable
// peer identity the way the teacher's crypto/toxid.go checksum bound a Tox
// ID to its public key. A fourth, explicit HandshakeComplete frame is sent
// by the responder once transport keys are split, since vanilla Noise-XX
// has nothing left for the responder to say after message three.
package noise
