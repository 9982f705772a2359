// Package domain defines the core domain models for DotVault.
package domain

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entity ID prefixes. Public identifiers use a hyphen, secrets use an
// underscore (see pkg/token).
const (
	// SessionIDPrefix is the prefix for transfer session IDs.
	SessionIDPrefix = "dvts-"

	// LeaseIDPrefix is the prefix for token lease IDs.
	LeaseIDPrefix = "dvls-"

	// AuditIDPrefix is the prefix for audit log entry IDs.
	AuditIDPrefix = "dvau-"

	// RecordIDPrefix is the prefix for transfer record IDs.
	RecordIDPrefix = "dvtr-"

	// APIKeyIDPrefix is the prefix for API key IDs.
	APIKeyIDPrefix = "dvak-"
)

// IDLength is the total length of a prefixed entity ID.
// prefix (5) + ULID (26) = 31 characters.
const IDLength = 31

// GenerateID generates a new prefixed entity ID using ULID.
// The ULID portion is lowercased so IDs are URL and log friendly.
func GenerateID(prefix string) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

// IsValidID checks if a string is a valid entity ID with the given prefix.
// IDs are normalized to lowercase before validation.
func IsValidID(id, prefix string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	if len(id) != IDLength {
		return false
	}
	ulidPart := strings.ToUpper(id[len(prefix):])
	_, err := ulid.Parse(ulidPart)
	return err == nil
}

// NormalizeID normalizes an entity ID to lowercase.
// Returns empty string if the ID is invalid for the given prefix.
func NormalizeID(id, prefix string) string {
	normalized := strings.ToLower(id)
	if !IsValidID(normalized, prefix) {
		return ""
	}
	return normalized
}
