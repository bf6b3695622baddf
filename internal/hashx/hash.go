// Package hashx provides the content-hashing primitive used for
// deduplication. Identical bytes always map to the same digest, and
// digest equality is treated as content equality throughout the core.
package hashx

import (
	"crypto/sha256"
	"encoding/hex"
)

// SumHex returns the hex-encoded SHA-256 digest of data.
func SumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
