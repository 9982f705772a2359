// Package domain defines the core domain models for DotVault.
package domain

import (
	"strings"
	"time"

	"github.com/swapdotz/dotvault/pkg/token"
)

// Role defines the permission level of an API key.
type Role string

const (
	// RoleMetrics has read-only access to monitoring metrics.
	RoleMetrics Role = "metrics"

	// RoleReader has read-only access to tokens and audit logs.
	RoleReader Role = "reader"

	// RoleOperator drives transfers for its bound user, plus reader
	// permissions.
	RoleOperator Role = "operator"

	// RoleAdmin has full access including provisioning and key
	// management.
	RoleAdmin Role = "admin"
)

// ValidRoles returns all valid roles.
func ValidRoles() []Role {
	return []Role{RoleMetrics, RoleReader, RoleOperator, RoleAdmin}
}

// IsValidRole checks if a string is a valid role.
func IsValidRole(r string) bool {
	switch Role(r) {
	case RoleMetrics, RoleReader, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// KeyStatus defines the status of an API key.
type KeyStatus string

const (
	// KeyStatusActive indicates the key is active and can be used.
	KeyStatusActive KeyStatus = "active"

	// KeyStatusDisabled indicates the key has been disabled.
	KeyStatusDisabled KeyStatus = "disabled"
)

// IsValidKeyStatus checks if a string is a valid key status.
func IsValidKeyStatus(s string) bool {
	switch KeyStatus(s) {
	case KeyStatusActive, KeyStatusDisabled:
		return true
	}
	return false
}

// Permission represents an action that can be performed.
type Permission string

// Permission constants for all operations.
const (
	// Transfer permissions
	PermTransferExecute Permission = "transfer.execute"

	// Token permissions
	PermTokenRead      Permission = "token.read"
	PermTokenProvision Permission = "token.provision"

	// Audit permissions
	PermAuditRead Permission = "audit.read"

	// API key permissions (admin only)
	PermAPIKeyCreate  Permission = "apikey.create"
	PermAPIKeyRead    Permission = "apikey.read"
	PermAPIKeyList    Permission = "apikey.list"
	PermAPIKeyDisable Permission = "apikey.disable"

	// System permissions (admin only)
	PermSystemStatus Permission = "system.status"
	PermSweepTrigger Permission = "sweep.trigger"

	// Metrics permissions
	PermMetricsRead Permission = "metrics.read"
)

// rolePermissions defines the permissions granted to each role.
// Higher roles inherit all permissions of lower roles.
var rolePermissions = map[Role][]Permission{
	RoleMetrics: {
		PermMetricsRead,
	},
	RoleReader: {
		PermTokenRead,
		PermAuditRead,
		PermMetricsRead,
	},
	RoleOperator: {
		PermTransferExecute,
		PermTokenRead,
		PermAuditRead,
		PermMetricsRead,
	},
	RoleAdmin: {
		PermTransferExecute,
		PermTokenRead,
		PermTokenProvision,
		PermAuditRead,
		PermAPIKeyCreate,
		PermAPIKeyRead,
		PermAPIKeyList,
		PermAPIKeyDisable,
		PermSystemStatus,
		PermSweepTrigger,
		PermMetricsRead,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role Role, perm Permission) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// GetPermissions returns all permissions for a role.
func GetPermissions(role Role) []Permission {
	if permissions, ok := rolePermissions[role]; ok {
		result := make([]Permission, len(permissions))
		copy(result, permissions)
		return result
	}
	return nil
}

// IsValidAPIKeyID checks if a string is a valid API key ID format.
func IsValidAPIKeyID(id string) bool {
	return IsValidID(id, APIKeyIDPrefix)
}

// NormalizeAPIKeyID normalizes an API key ID to lowercase.
// Returns empty string if the ID is invalid.
func NormalizeAPIKeyID(id string) string {
	return NormalizeID(id, APIKeyIDPrefix)
}

// MaskAPIKeySecret masks an API key secret for safe logging.
func MaskAPIKeySecret(secret string) string {
	if len(secret) < 10 {
		return "***REDACTED***"
	}
	if strings.HasPrefix(secret, token.PrefixAPIKey) {
		prefix := secret[:len(token.PrefixAPIKey)]
		body := secret[len(token.PrefixAPIKey):]
		if len(body) > 6 {
			return prefix + body[:3] + "..." + body[len(body)-3:]
		}
		return prefix + "***"
	}
	return "***REDACTED***"
}

// APIKey represents an API access key entity.
//
// Every key is bound to a user; transfer calls authenticated with the
// key act as that user and may only finalize to it.
type APIKey struct {
	// KeyID is the unique identifier (public).
	// Format: dvak-{ulid_lowercase}, 31 characters total.
	KeyID string `json:"key_id"`

	// Name is the human-readable name for the key.
	Name string `json:"name"`

	// UserID is the user this key acts as.
	UserID string `json:"user_id"`

	// SecretHash is the SHA-256 hash of the secret (never exposed).
	SecretHash string `json:"-"`

	// Role defines the permission level.
	Role Role `json:"role"`

	// RateLimit is the sustained request rate limit in QPS.
	RateLimit int `json:"rate_limit"`

	// Status is the key status (active/disabled).
	Status KeyStatus `json:"status"`

	// Description is an optional description.
	Description string `json:"description,omitempty"`

	// ExpiresAt is the absolute expiration time (Unix MS), 0 = never.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// CreatedAt is the creation timestamp (Unix MS).
	CreatedAt int64 `json:"created_at"`

	// LastUsed is the last usage timestamp (Unix MS).
	LastUsed int64 `json:"last_used,omitempty"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// APIKey constraints.
const (
	MaxKeyNameLength        = 128
	MaxKeyDescriptionLength = 256
	MinRateLimit            = 1
	MaxRateLimit            = 1000000
	DefaultKeyRateLimit     = 100
)

// NewAPIKey creates a new APIKey bound to userID with a generated ID
// and secret. Returns the key and the plaintext secret; the secret is
// only ever returned here.
func NewAPIKey(name, userID string, role Role) (*APIKey, string, error) {
	keyID, err := GenerateID(APIKeyIDPrefix)
	if err != nil {
		return nil, "", err
	}

	plainSecret, err := token.GenerateWithPrefix(token.PrefixAPIKey)
	if err != nil {
		return nil, "", ErrInternalServer.WithCause(err)
	}

	return &APIKey{
		KeyID:      keyID,
		Name:       name,
		UserID:     userID,
		SecretHash: token.Hash(plainSecret),
		Role:       role,
		Status:     KeyStatusActive,
		RateLimit:  DefaultKeyRateLimit,
		CreatedAt:  time.Now().UnixMilli(),
		Version:    1,
	}, plainSecret, nil
}

// VerifySecret checks a presented secret against the stored hash in
// constant time.
func (k *APIKey) VerifySecret(secret string) bool {
	return token.Verify(secret, k.SecretHash)
}

// IsExpired returns true if the API key has expired.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == 0 {
		return false
	}
	return time.Now().UnixMilli() > k.ExpiresAt
}

// IsActive returns true if the key is active and not expired.
func (k *APIKey) IsActive() bool {
	return k.Status == KeyStatusActive && !k.IsExpired()
}

// Touch updates the LastUsed timestamp.
func (k *APIKey) Touch() {
	k.LastUsed = time.Now().UnixMilli()
}

// IncrVersion increments the version number for optimistic locking.
func (k *APIKey) IncrVersion() {
	k.Version++
}

// GetVersion returns the current version for optimistic locking.
func (k *APIKey) GetVersion() uint64 {
	return k.Version
}

// SetVersion sets the version number for optimistic locking.
func (k *APIKey) SetVersion(v uint64) {
	k.Version = v
}

// CreatedAtTime returns CreatedAt as time.Time.
func (k *APIKey) CreatedAtTime() time.Time {
	return time.UnixMilli(k.CreatedAt)
}

// LastUsedAtTime returns LastUsed as time.Time.
func (k *APIKey) LastUsedAtTime() time.Time {
	if k.LastUsed == 0 {
		return time.Time{}
	}
	return time.UnixMilli(k.LastUsed)
}

// Validate validates the API key fields.
func (k *APIKey) Validate() error {
	var violations []string

	if k.KeyID == "" {
		violations = append(violations, "key_id is required")
	} else if !IsValidAPIKeyID(k.KeyID) {
		violations = append(violations, "key_id format invalid")
	}

	if k.SecretHash == "" {
		violations = append(violations, "secret_hash is required")
	}

	if k.UserID == "" {
		violations = append(violations, "user_id is required")
	}

	if !IsValidRole(string(k.Role)) {
		violations = append(violations, "invalid role")
	}

	if !IsValidKeyStatus(string(k.Status)) {
		violations = append(violations, "invalid status")
	}

	if len(k.Name) > MaxKeyNameLength {
		violations = append(violations, "name exceeds 128 characters")
	}

	if k.RateLimit < MinRateLimit || k.RateLimit > MaxRateLimit {
		violations = append(violations, "rate_limit must be between 1 and 1,000,000")
	}

	if len(k.Description) > MaxKeyDescriptionLength {
		violations = append(violations, "description exceeds 256 characters")
	}

	if len(violations) > 0 {
		return ErrInvalidRequest.WithDetails(strings.Join(violations, "; "))
	}

	return nil
}

// Clone creates a copy of the API key.
func (k *APIKey) Clone() *APIKey {
	clone := *k
	return &clone
}
