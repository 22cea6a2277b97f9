package crypto

import (
	"crypto/rand"
	"errors"
)

// RandBytes fills buf with cryptographically secure random bytes.
func RandBytes(buf []byte) error {
	if len(buf) == 0 {
		return errors.New("cannot fill empty buffer")
	}
	_, err := rand.Read(buf)
	return err
}
