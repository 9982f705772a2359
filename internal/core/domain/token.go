// Package domain defines the core domain models for DotVault.
package domain

import (
	"encoding/hex"
	"strings"
	"time"
)

// Token constraints.
const (
	// TokenUIDMinLength and TokenUIDMaxLength bound the hex-encoded
	// card UID (7-byte and 10-byte UIDs in the field).
	TokenUIDMinLength = 14
	TokenUIDMaxLength = 20

	MaxOwnerIDLength     = 128
	MaxTokenNameLength   = 128
	MaxCategoryLength    = 64
	MaxTokenDescLength   = 512
	MaxOwnerHistoryDepth = 100
)

// Lock marks a token as held by an in-flight transfer. A token carries
// at most one lock; it is the unit of mutual exclusion for transfers.
type Lock struct {
	// LeaseID identifies the lease backing this lock.
	// Format: dvls-{ulid_lowercase}.
	LeaseID string `json:"lease_id"`

	// SessionID is the transfer session that holds the lease.
	SessionID string `json:"session_id"`

	// UserID is the initiating caller's user.
	UserID string `json:"user_id"`

	// ExpiresAt is when the lease lapses (Unix milliseconds). A lapsed
	// lock is reclaimable by any new transfer.
	ExpiresAt int64 `json:"expires_at"`
}

// IsExpired returns true if the lock's lease has lapsed.
func (l *Lock) IsExpired() bool {
	return time.Now().UnixMilli() > l.ExpiresAt
}

// OwnerChange records one completed change of ownership.
type OwnerChange struct {
	// From is the previous owner, empty for initial registration.
	From string `json:"from,omitempty"`

	// To is the new owner.
	To string `json:"to"`

	// RecordID points at the transfer record that effected the change,
	// empty for registration.
	RecordID string `json:"record_id,omitempty"`

	// At is the change timestamp (Unix milliseconds).
	At int64 `json:"at"`
}

// TokenStatus describes the lifecycle state of a registered token.
type TokenStatus string

const (
	// TokenStatusActive indicates the token is transferable.
	TokenStatusActive TokenStatus = "active"

	// TokenStatusRetired indicates the token was taken out of
	// circulation and cannot enter new transfers.
	TokenStatusRetired TokenStatus = "retired"
)

// IsValidTokenStatus checks if a string is a valid token status.
func IsValidTokenStatus(s string) bool {
	switch TokenStatus(s) {
	case TokenStatusActive, TokenStatusRetired:
		return true
	}
	return false
}

// Metadata carries the display attributes of a physical token.
type Metadata struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Rarity      string `json:"rarity,omitempty"`
	Points      int64  `json:"points,omitempty"`
}

// Token represents one registered physical secure-element token.
//
// The server is the sole authority on ownership: the card itself only
// proves possession of its current master key. Key material is never
// part of this entity; it lives in the key store.
type Token struct {
	// ID is the hex-encoded card UID, lowercase.
	ID string `json:"id"`

	// OwnerID is the current owner.
	OwnerID string `json:"owner_id"`

	// KeyVersion is the current key generation. Each completed transfer
	// increments it by exactly one.
	KeyVersion uint32 `json:"key_version"`

	// Lock is the active transfer hold, nil when the token is free.
	Lock *Lock `json:"lock,omitempty"`

	// PreviousOwners is the ownership history, oldest first.
	PreviousOwners []OwnerChange `json:"previous_owners,omitempty"`

	// Metadata carries display attributes.
	Metadata Metadata `json:"metadata"`

	// Status is the lifecycle state (active/retired).
	Status TokenStatus `json:"status"`

	// TransferCount is the number of completed ownership transfers.
	TransferCount uint64 `json:"transfer_count"`

	// LastTransferAt is the completion time of the most recent transfer
	// (Unix milliseconds), 0 if never transferred.
	LastTransferAt int64 `json:"last_transfer_at,omitempty"`

	// CreatedAt is the registration timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is the last mutation timestamp (Unix milliseconds).
	UpdatedAt int64 `json:"updated_at"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// NewToken creates a registered token owned by ownerID.
func NewToken(uid, ownerID string) (*Token, error) {
	normalized := NormalizeTokenID(uid)
	if normalized == "" {
		return nil, ErrInvalidRequest.WithDetails("token id must be a hex card uid")
	}
	now := time.Now().UnixMilli()
	// Registration is recorded in the audit log, not the ownership
	// history: PreviousOwners holds only displaced owners, appended at
	// finalize.
	return &Token{
		ID:         normalized,
		OwnerID:    ownerID,
		KeyVersion: 0,
		Status:     TokenStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

// IsLocked returns true if the token carries an unexpired lock.
func (t *Token) IsLocked() bool {
	return t.Lock != nil && !t.Lock.IsExpired()
}

// LockedBy returns true if the unexpired lock is held by sessionID.
func (t *Token) LockedBy(sessionID string) bool {
	return t.IsLocked() && t.Lock.SessionID == sessionID
}

// Acquire places a lock on the token. An existing unexpired lock held
// by a different session is a conflict.
func (t *Token) Acquire(lock *Lock) error {
	if t.IsLocked() && t.Lock.SessionID != lock.SessionID {
		return ErrTokenLocked.WithDetails("held by session " + t.Lock.SessionID)
	}
	t.Lock = lock
	t.UpdatedAt = time.Now().UnixMilli()
	return nil
}

// Release removes the lock if held by sessionID. Releasing a lock the
// session does not hold is a no-op.
func (t *Token) Release(sessionID string) {
	if t.Lock != nil && t.Lock.SessionID == sessionID {
		t.Lock = nil
		t.UpdatedAt = time.Now().UnixMilli()
	}
}

// TransferTo records a completed ownership change and bumps the key
// generation. The caller persists the result under optimistic locking.
func (t *Token) TransferTo(newOwner, recordID string) {
	now := time.Now().UnixMilli()
	t.PreviousOwners = append(t.PreviousOwners, OwnerChange{
		From:     t.OwnerID,
		To:       newOwner,
		RecordID: recordID,
		At:       now,
	})
	if len(t.PreviousOwners) > MaxOwnerHistoryDepth {
		t.PreviousOwners = t.PreviousOwners[len(t.PreviousOwners)-MaxOwnerHistoryDepth:]
	}
	t.OwnerID = newOwner
	t.KeyVersion++
	t.TransferCount++
	t.LastTransferAt = now
	t.Lock = nil
	t.UpdatedAt = now
}

// IncrVersion increments the version number for optimistic locking.
func (t *Token) IncrVersion() {
	t.Version++
}

// GetVersion returns the current version for optimistic locking.
func (t *Token) GetVersion() uint64 {
	return t.Version
}

// SetVersion sets the version number for optimistic locking.
func (t *Token) SetVersion(v uint64) {
	t.Version = v
}

// Validate validates the token fields against constraints.
func (t *Token) Validate() error {
	var violations []string

	if !IsValidTokenID(t.ID) {
		violations = append(violations, "id must be a lowercase hex card uid")
	}
	if t.OwnerID == "" {
		violations = append(violations, "owner_id is required")
	}
	if len(t.OwnerID) > MaxOwnerIDLength {
		violations = append(violations, "owner_id exceeds 128 characters")
	}
	if len(t.Metadata.Name) > MaxTokenNameLength {
		violations = append(violations, "metadata.name exceeds 128 characters")
	}
	if len(t.Metadata.Description) > MaxTokenDescLength {
		violations = append(violations, "metadata.description exceeds 512 characters")
	}
	if len(t.Metadata.Category) > MaxCategoryLength {
		violations = append(violations, "metadata.category exceeds 64 characters")
	}
	if !IsValidTokenStatus(string(t.Status)) {
		violations = append(violations, "invalid status")
	}

	if len(violations) > 0 {
		return ErrInvalidRequest.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the token.
func (t *Token) Clone() *Token {
	clone := *t
	if t.Lock != nil {
		lock := *t.Lock
		clone.Lock = &lock
	}
	if t.PreviousOwners != nil {
		clone.PreviousOwners = make([]OwnerChange, len(t.PreviousOwners))
		copy(clone.PreviousOwners, t.PreviousOwners)
	}
	return &clone
}

// CreatedAtTime returns CreatedAt as time.Time.
func (t *Token) CreatedAtTime() time.Time {
	return time.UnixMilli(t.CreatedAt)
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (t *Token) UpdatedAtTime() time.Time {
	return time.UnixMilli(t.UpdatedAt)
}

// IsValidTokenID checks if a string is a valid hex card UID.
func IsValidTokenID(id string) bool {
	if len(id) < TokenUIDMinLength || len(id) > TokenUIDMaxLength || len(id)%2 != 0 {
		return false
	}
	if id != strings.ToLower(id) {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// NormalizeTokenID normalizes a card UID to lowercase hex.
// Returns empty string if the ID is invalid.
func NormalizeTokenID(id string) string {
	normalized := strings.ToLower(id)
	if !IsValidTokenID(normalized) {
		return ""
	}
	return normalized
}
