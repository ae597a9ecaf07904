package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString calculates the SHA256 content hash of a string.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashBytes calculates the SHA256 content hash of a byte slice.
func HashBytes(b []byte) string {
	h := sha256.New()
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
