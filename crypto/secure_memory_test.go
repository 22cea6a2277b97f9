package crypto

import (
	"testing"
)

func TestSecureMemoryHandling(t *testing.T) {
	kp, err := GenerateDHKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate keypair: %v", err)
	}

	var privateCopy [32]byte
	copy(privateCopy[:], kp.Private[:])

	allZeroInitially := true
	for _, b := range kp.Private {
		if b != 0 {
			allZeroInitially = false
			break
		}
	}
	if allZeroInitially {
		t.Fatalf("Private key is all zeros before wiping, test cannot proceed")
	}

	if err := SecureWipe(kp.Private[:]); err != nil {
		t.Fatalf("SecureWipe failed: %v", err)
	}

	for _, b := range kp.Private {
		if b != 0 {
			t.Fatalf("Private key data was not securely wiped by SecureWipe")
		}
	}

	kp2, err := GenerateDHKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate second keypair: %v", err)
	}

	if err := WipeDHKeyPair(kp2); err != nil {
		t.Fatalf("WipeDHKeyPair failed: %v", err)
	}

	for _, b := range kp2.Private {
		if b != 0 {
			t.Fatalf("Private key data was not securely wiped by WipeDHKeyPair")
		}
	}

	testData := []byte{1, 2, 3, 4, 5}
	ZeroBytes(testData)
	for i, b := range testData {
		if b != 0 {
			t.Fatalf("ZeroBytes failed to zero byte at position %d", i)
		}
	}

	sameAsOriginal := true
	for i, b := range privateCopy {
		if b != kp.Private[i] {
			sameAsOriginal = false
			break
		}
	}
	if sameAsOriginal {
		t.Fatalf("Private key data was not changed after wiping")
	}
}

func TestWipeSigningKeyPair(t *testing.T) {
	kp, err := GenerateSigningKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate signing keypair: %v", err)
	}

	if err := WipeSigningKeyPair(kp); err != nil {
		t.Fatalf("WipeSigningKeyPair failed: %v", err)
	}

	for _, b := range kp.Private {
		if b != 0 {
			t.Fatalf("Private signing key was not wiped")
		}
	}
}
