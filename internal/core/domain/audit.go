// Package domain defines the core domain models for DotVault.
package domain

import (
	"strings"
	"time"
)

// AuditEvent is the type of an audit log entry.
type AuditEvent string

const (
	// AuditTransferBegin records a transfer session opening.
	AuditTransferBegin AuditEvent = "transfer_begin"

	// AuditTransferComplete records a committed ownership change.
	AuditTransferComplete AuditEvent = "transfer_complete"

	// AuditTransferFailed records an abandoned or failed transfer.
	AuditTransferFailed AuditEvent = "transfer_failed"

	// AuditSessionExpired records a session collected by the sweeper.
	AuditSessionExpired AuditEvent = "session_expired"

	// AuditTokenProvisioned records a token registration.
	AuditTokenProvisioned AuditEvent = "token_provisioned"
)

// IsValidAuditEvent checks if a string is a known audit event type.
func IsValidAuditEvent(e string) bool {
	switch AuditEvent(e) {
	case AuditTransferBegin, AuditTransferComplete, AuditTransferFailed,
		AuditSessionExpired, AuditTokenProvisioned:
		return true
	}
	return false
}

// AuditLogEntry is one append-only audit record. Entries never carry
// key material, challenges, or frame payloads; status words and error
// kinds only.
type AuditLogEntry struct {
	// ID is the entry identifier.
	// Format: dvau-{ulid_lowercase}; ULIDs keep entries time-ordered.
	ID string `json:"id"`

	// Event is the entry type.
	Event AuditEvent `json:"event"`

	// TokenID is the token involved.
	TokenID string `json:"token_id"`

	// SessionID is the transfer session involved, if any.
	SessionID string `json:"session_id,omitempty"`

	// UserID is the acting user, if any.
	UserID string `json:"user_id,omitempty"`

	// FromOwner and ToOwner describe an ownership change.
	FromOwner string `json:"from_owner,omitempty"`
	ToOwner   string `json:"to_owner,omitempty"`

	// KeyVersion is the token key generation after the event.
	KeyVersion uint32 `json:"key_version,omitempty"`

	// Detail carries an error kind or free-form context.
	Detail string `json:"detail,omitempty"`

	// At is the event timestamp (Unix milliseconds).
	At int64 `json:"at"`
}

// NewAuditLogEntry creates an entry for event on tokenID, stamped now.
func NewAuditLogEntry(event AuditEvent, tokenID string) (*AuditLogEntry, error) {
	id, err := GenerateID(AuditIDPrefix)
	if err != nil {
		return nil, err
	}
	return &AuditLogEntry{
		ID:      id,
		Event:   event,
		TokenID: tokenID,
		At:      time.Now().UnixMilli(),
	}, nil
}

// AtTime returns At as time.Time.
func (e *AuditLogEntry) AtTime() time.Time {
	return time.UnixMilli(e.At)
}

// RecordStatus is the settlement state of a transfer record.
type RecordStatus string

const (
	// RecordPending marks an open, unsettled transfer.
	RecordPending RecordStatus = "pending"

	// RecordCommitted marks a transfer whose ownership change applied.
	RecordCommitted RecordStatus = "committed"

	// RecordFailed marks a transfer that ended without applying.
	RecordFailed RecordStatus = "failed"

	// RecordSuperseded marks a pending record retired by a later
	// committed transfer of the same token.
	RecordSuperseded RecordStatus = "superseded"
)

// TransferRecord is the durable trace of one transfer attempt. Unlike
// sessions it survives restarts: a pending record with no live session
// is evidence of an interrupted transfer.
type TransferRecord struct {
	// ID is the record identifier.
	// Format: dvtr-{ulid_lowercase}.
	ID string `json:"id"`

	// SessionID is the in-memory session that drove this attempt.
	SessionID string `json:"session_id"`

	// TokenID is the token under transfer.
	TokenID string `json:"token_id"`

	// FromOwner is the owner when the attempt began.
	FromOwner string `json:"from_owner"`

	// ToUser is the receiving user.
	ToUser string `json:"to_user"`

	// KeyVersion is the token key generation at Begin.
	KeyVersion uint32 `json:"key_version"`

	// Status is the settlement state.
	Status RecordStatus `json:"status"`

	// FailureCode records the error kind for failed records.
	FailureCode string `json:"failure_code,omitempty"`

	// CreatedAt and SettledAt are Unix millisecond timestamps.
	CreatedAt int64 `json:"created_at"`
	SettledAt int64 `json:"settled_at,omitempty"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// NewTransferRecord opens a pending record for a transfer attempt.
func NewTransferRecord(sessionID, tokenID, fromOwner, toUser string, keyVersion uint32) (*TransferRecord, error) {
	id, err := GenerateID(RecordIDPrefix)
	if err != nil {
		return nil, err
	}
	return &TransferRecord{
		ID:         id,
		SessionID:  sessionID,
		TokenID:    tokenID,
		FromOwner:  fromOwner,
		ToUser:     toUser,
		KeyVersion: keyVersion,
		Status:     RecordPending,
		CreatedAt:  time.Now().UnixMilli(),
		Version:    1,
	}, nil
}

// Settle moves the record to a terminal status.
func (r *TransferRecord) Settle(status RecordStatus, failureCode string) {
	r.Status = status
	r.FailureCode = failureCode
	r.SettledAt = time.Now().UnixMilli()
}

// IsPending returns true while the record is unsettled.
func (r *TransferRecord) IsPending() bool {
	return r.Status == RecordPending
}

// IncrVersion increments the version number for optimistic locking.
func (r *TransferRecord) IncrVersion() {
	r.Version++
}

// GetVersion returns the current version for optimistic locking.
func (r *TransferRecord) GetVersion() uint64 {
	return r.Version
}

// SetVersion sets the version number for optimistic locking.
func (r *TransferRecord) SetVersion(v uint64) {
	r.Version = v
}

// Validate validates the record fields.
func (r *TransferRecord) Validate() error {
	var violations []string

	if !IsValidID(r.ID, RecordIDPrefix) {
		violations = append(violations, "id format invalid")
	}
	if !IsValidTokenID(r.TokenID) {
		violations = append(violations, "token_id format invalid")
	}
	if r.ToUser == "" {
		violations = append(violations, "to_user is required")
	}

	if len(violations) > 0 {
		return ErrInvalidRequest.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the record.
func (r *TransferRecord) Clone() *TransferRecord {
	clone := *r
	return &clone
}
