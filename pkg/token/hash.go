package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash digests a secret for storage. Secrets produced by this package
// are high-entropy random values, so an unsalted SHA-256 is
// preimage-bound without paying for a password KDF.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Verify compares a presented secret against a stored hash in constant
// time.
func Verify(secret, storedHash string) bool {
	presented := Hash(secret)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(storedHash)) == 1
}
