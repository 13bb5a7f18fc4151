// Package digest computes the content address used for duplicate detection.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length in characters of a digest returned by Sum.
const Size = sha256.Size * 2

// Sum returns the lowercase hex SHA-256 of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
