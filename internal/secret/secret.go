// Package secret produces the opaque refresh secrets handed to clients and
// the digests stored in their place.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// rawSize is the entropy of a refresh secret in bytes.
const rawSize = 48

// Generate returns a new high-entropy opaque secret, base64url encoded
// without padding so it survives any transport untouched.
func Generate() (string, error) {
	buf := make([]byte, rawSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest returns the hex-encoded SHA-256 of a raw secret. Deterministic so
// the store can look tokens up by it. Unsalted: the input is itself random,
// high-entropy and single-use, so rainbow tables buy an attacker nothing.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
