package crypto

import (
	"bytes"
	"testing"
)

func TestGenerateDHKeyPair(t *testing.T) {
	kp, err := GenerateDHKeyPair()
	if err != nil {
		t.Fatalf("GenerateDHKeyPair() error: %v", err)
	}

	if isZeroKey(kp.Public) {
		t.Error("GenerateDHKeyPair() returned zero public key")
	}
	if isZeroKey(kp.Private) {
		t.Error("GenerateDHKeyPair() returned zero private key")
	}

	kp2, _ := GenerateDHKeyPair()
	if bytes.Equal(kp.Public[:], kp2.Public[:]) {
		t.Error("multiple GenerateDHKeyPair() calls produced identical public keys")
	}
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	c := []byte{1, 2, 4}

	if !ConstantTimeCompare(a, b) {
		t.Error("ConstantTimeCompare should report equal slices as equal")
	}
	if ConstantTimeCompare(a, c) {
		t.Error("ConstantTimeCompare should report differing slices as unequal")
	}
	if ConstantTimeCompare(a, []byte{1, 2}) {
		t.Error("ConstantTimeCompare should report differing lengths as unequal")
	}
}

func TestSignAndVerify(t *testing.T) {
	keyPair, err := GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	testCases := []struct {
		name      string
		message   []byte
		expectErr bool
	}{
		{"Normal message", []byte("Test message to sign"), false},
		{"Empty message", []byte{}, true},
		{"Binary data", []byte{0x00, 0x01, 0x02, 0x03, 0xFF}, false},
		{"Long message", bytes.Repeat([]byte("A"), 1024), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			signature, err := Sign(tc.message, keyPair.Private)

			if tc.expectErr {
				if err == nil {
					t.Fatal("Expected signing error, but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("Sign() error: %v", err)
			}

			if !Verify(tc.message, signature, keyPair.Public) {
				t.Error("Signature verification failed")
			}

			if len(tc.message) > 0 {
				tamperedMsg := make([]byte, len(tc.message))
				copy(tamperedMsg, tc.message)
				tamperedMsg[0] ^= 0xFF

				if Verify(tamperedMsg, signature, keyPair.Public) {
					t.Error("Verification should fail with tampered message")
				}
			}
		})
	}
}
