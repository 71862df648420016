package main

import (
	"crypto/rand"
	"encoding/hex"
)

// newFileID generates a 6-hex-char identifier from 3 CSPRNG bytes. File ids
// are opaque (SPEC_FULL.md §3); collisions are not impossible, just unlikely
// at this deployment's scale.
func newFileID() (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
