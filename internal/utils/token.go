package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of trusted-device tokens (256 bits).
const OpaqueTokenBytes = 32

// HashToken returns the SHA-256 hex digest of a raw token. Only digests are
// stored, so a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewOpaqueToken returns OpaqueTokenBytes of crypto/rand output, hex encoded.
func NewOpaqueToken() (string, error) {
	return randomHex(OpaqueTokenBytes)
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
