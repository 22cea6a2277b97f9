// Package crypto implements the cryptographic primitives used by the
// lanshare peer protocol.
//
// It provides long-term Ed25519 signing keys, X25519 Diffie-Hellman key
// pair generation, a CSPRNG wrapper, constant-time comparison, and
// best-effort secure wiping of key material. It does not implement the
// X25519 DH operation, HKDF-SHA256 or AES-256-GCM itself: those run inside
// github.com/flynn/noise, which the handshake and record-layer packages
// use directly. Nothing here manages
// nonces on its own: callers derive and track nonces, matching the
// discipline described in the handshake and record-layer packages.
//
// Example:
//
//	kp, err := crypto.GenerateSigningKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sig, _ := crypto.Sign(transcript, kp.Private)
//	ok := crypto.Verify(transcript, sig, kp.Public)
package crypto
