package crypto

import (
	"encoding/hex"
	"errors"

	"crypto/sha256"
)

// PeerIDSize is the length of a derived peer id in hex characters
// (first 16 bytes of SHA-256 over the public signing key).
const PeerIDSize = 32

// DerivePeerID computes the stable peer identifier for a public signing
// key: lowercase hex of the first 16 bytes of SHA-256(publicKey).
func DerivePeerID(publicKey [32]byte) string {
	sum := sha256.Sum256(publicKey[:])
	return hex.EncodeToString(sum[:16])
}

// LocalIdentity is the exclusively owned long-term signing key pair for
// this process. It is created once at startup and destroyed at shutdown.
type LocalIdentity struct {
	keyPair *SigningKeyPair
	peerID  string
}

// NewLocalIdentity generates a fresh long-term signing key pair and
// derives its peer id.
func NewLocalIdentity() (*LocalIdentity, error) {
	kp, err := GenerateSigningKeyPair()
	if err != nil {
		return nil, err
	}
	return &LocalIdentity{keyPair: kp, peerID: DerivePeerID(kp.Public)}, nil
}

// PeerID returns this identity's derived peer id.
func (id *LocalIdentity) PeerID() string {
	return id.peerID
}

// PublicKey returns a copy of the long-term public signing key.
func (id *LocalIdentity) PublicKey() [32]byte {
	return id.keyPair.Public
}

// PrivateKey returns a copy of the long-term private signing key, for use
// signing handshake payloads. Callers must not retain it beyond the
// handshake.
func (id *LocalIdentity) PrivateKey() [64]byte {
	return id.keyPair.Private
}

// Close securely wipes the private signing key. It must be called exactly
// once, at process shutdown.
func (id *LocalIdentity) Close() error {
	if id.keyPair == nil {
		return errors.New("crypto: LocalIdentity already closed")
	}
	err := WipeSigningKeyPair(id.keyPair)
	id.keyPair = nil
	return err
}

// RemoteIdentity is the authenticated public signing key of a peer,
// established during the handshake and shared for the lifetime of the
// session.
type RemoteIdentity struct {
	PublicKey [32]byte
	PeerID    string
}

// NewRemoteIdentity derives a RemoteIdentity from a freshly disclosed
// static public signing key.
func NewRemoteIdentity(publicKey [32]byte) RemoteIdentity {
	return RemoteIdentity{PublicKey: publicKey, PeerID: DerivePeerID(publicKey)}
}
