package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// IDLength is the length of an image id: lowercase hex of 128 random bits.
const IDLength = 32

// NewID generates a fresh image id.
func NewID() (string, error) {
	raw := make([]byte, IDLength/2)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ValidID reports whether s is a well-formed image id. Used to keep
// request-supplied ids from reaching the filesystem layer.
func ValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
