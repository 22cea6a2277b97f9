package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents an Ed25519 signature.
type Signature [SignatureSize]byte

// SigningKeyPair is a long-term Ed25519 identity key pair.
type SigningKeyPair struct {
	Public  [32]byte
	Private [64]byte
}

// GenerateSigningKeyPair creates a new random Ed25519 identity key pair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key pair: %w", err)
	}

	kp := &SigningKeyPair{}
	copy(kp.Public[:], pub)
	copy(kp.Private[:], priv)

	return kp, nil
}

// Sign creates an Ed25519 signature for a message using the private key.
func Sign(message []byte, privateKey [64]byte) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	signatureBytes := ed25519.Sign(ed25519.PrivateKey(privateKey[:]), message)

	var signature Signature
	copy(signature[:], signatureBytes)

	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
func Verify(message []byte, signature Signature, publicKey [32]byte) bool {
	if len(message) == 0 {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey[:]), message, signature[:])
}
