// Package crypto implements cryptographic primitives for the lanshare protocol.
package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// DHKeyPair is an ephemeral or static X25519 Diffie-Hellman key pair used
// during the Noise-XX handshake.
type DHKeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateDHKeyPair creates a new random X25519 key pair.
func GenerateDHKeyPair() (*DHKeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateDHKeyPair",
		"package":  "crypto",
	})

	logger.Debug("Function entry: generating new X25519 key pair")

	var priv [32]byte
	if err := RandBytes(priv[:]); err != nil {
		logger.WithFields(logrus.Fields{
			"error":     err.Error(),
			"operation": "RandBytes",
		}).Error("Failed to generate DH key pair entropy")
		return nil, err
	}

	// Clamp per RFC 7748 so the scalar is a valid X25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		ZeroBytes(priv[:])
		return nil, fmt.Errorf("derive X25519 public key: %w", err)
	}

	kp := &DHKeyPair{}
	copy(kp.Private[:], priv[:])
	copy(kp.Public[:], pub)
	ZeroBytes(priv[:])

	logger.WithFields(logrus.Fields{
		"public_key_preview": fmt.Sprintf("%x", kp.Public[:8]),
	}).Debug("X25519 key pair generated")

	return kp, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
