package crypto

import "crypto/subtle"

// ConstantTimeCompare reports whether a and b are equal, in constant time
// with respect to their contents (but not their lengths).
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
