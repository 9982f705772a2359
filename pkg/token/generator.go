// Package token provides secret token generation and hashing utilities.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// Well-known secret prefixes.
const (
	// PrefixVerify marks one-time transfer verify tokens.
	PrefixVerify = "dvvt_"

	// PrefixAPIKey marks API key secrets.
	PrefixAPIKey = "dvak_"
)

// DefaultLength is the default token length in bytes.
const DefaultLength = 32

// Generate generates a cryptographically secure random token.
//
// The returned token is Base64 RawURL encoded for safe URL transmission.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithPrefix generates a token carrying one of the well-known
// secret prefixes.
func GenerateWithPrefix(prefix string) (string, error) {
	body, err := GenerateWithLength(DefaultLength)
	if err != nil {
		return "", err
	}
	return prefix + body, nil
}

// GenerateWithLength generates a token with the specified byte length.
func GenerateWithLength(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HasPrefix reports whether s carries the given secret prefix.
func HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}
