package config

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashBytes returns the hex BLAKE3-256 digest of data.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash trims a digest for display, keeping the first 12 hex digits.
func ShortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
