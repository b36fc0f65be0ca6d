// Package cryptoutil holds the hashing and signature-verification
// helpers used to validate content bundles before they are served.
package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashEqual compares two hex-encoded hashes in constant time. Bundle
// hashes are not secrets, but one comparison routine everywhere beats
// deciding per call site whether timing matters.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hex returns the hex-encoded SHA-256 of data.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
