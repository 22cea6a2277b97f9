package crypto

import (
	"fmt"
	"math"
)

// SafeUint64ToInt64 safely converts uint64 to int64, checking for overflow.
// The handshake's wire timestamp is carried as uint64; this guards its
// conversion back to the int64 time.Duration arithmetic verifySignedPayload
// uses to check freshness.
//
// CWE-190: Integer Overflow or Wraparound
// gosec G115: Integer overflow check
func SafeUint64ToInt64(val uint64) (int64, error) {
	if val > math.MaxInt64 {
		return 0, fmt.Errorf("uint64 value exceeds int64 max: %d (max: %d)", val, math.MaxInt64)
	}
	return int64(val), nil
}

// SafeInt64ToUint64 safely converts int64 to uint64, checking for negative
// values. time.Now().UnixMilli() is int64; this guards its conversion to
// the wire's unsigned timestamp field in signedPayload.
//
// CWE-190: Integer Overflow or Wraparound
// gosec G115: Integer overflow check
func SafeInt64ToUint64(val int64) (uint64, error) {
	if val < 0 {
		return 0, fmt.Errorf("cannot convert negative int64 to uint64: %d", val)
	}
	return uint64(val), nil
}
