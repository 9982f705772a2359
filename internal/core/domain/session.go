// Package domain defines the core domain models for DotVault.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling.
package domain

import (
	"strings"
	"time"
)

// Session constraints.
const (
	// DefaultSessionTTL is the default transfer session lifetime.
	DefaultSessionTTL = 90 * time.Second

	// MaxIdempotencyRecords bounds the per-session replay cache.
	MaxIdempotencyRecords = 32

	// MaxIdempotencyKeyLength bounds client-supplied idempotency keys.
	MaxIdempotencyKeyLength = 128
)

// SessionState is the lifecycle state of a transfer session.
type SessionState string

const (
	// SessionPending is the only mutable state.
	SessionPending SessionState = "pending"

	// SessionComplete is terminal: ownership was committed.
	SessionComplete SessionState = "complete"

	// SessionFailed is terminal: the transfer was abandoned, expired,
	// or failed authentication.
	SessionFailed SessionState = "failed"
)

// SessionPhase tracks how far a pending transfer has progressed.
type SessionPhase string

const (
	// PhaseAuth covers the card authentication handshake.
	PhaseAuth SessionPhase = "auth"

	// PhaseAuthOK means mutual authentication succeeded and a session
	// key is established.
	PhaseAuthOK SessionPhase = "auth-ok"

	// PhaseMidOK means the card accepted a key rotation; the pending
	// key is live on the card and the transfer may be finalized.
	PhaseMidOK SessionPhase = "mid-ok"
)

// Scratch holds the per-session cryptographic working state. It lives
// only in the in-memory session store and is never persisted or
// serialized; the JSON tag on every field enforces that at the type.
type Scratch struct {
	// AuthState is the handshake position (see protocol package).
	AuthState string `json:"-"`

	// RndA is the server challenge drawn during authentication.
	RndA []byte `json:"-"`

	// RndB is the card challenge recovered during authentication.
	RndB []byte `json:"-"`

	// SessionKey is the derived card session key, set in auth-ok.
	SessionKey []byte `json:"-"`

	// PendingKey is the key offered to the card by an in-flight
	// rotation, promoted on confirm.
	PendingKey []byte `json:"-"`

	// PendingKeyVersion is the generation of PendingKey.
	PendingKeyVersion uint32 `json:"-"`

	// VerifyTokenHash is the SHA-256 hash of the outstanding rotation
	// verify token, empty when none is outstanding or it was consumed.
	VerifyTokenHash string `json:"-"`

	// FramesHash binds the verify token to the exact frames issued.
	FramesHash string `json:"-"`
}

// Wipe zeroes the key material held in scratch.
func (s *Scratch) Wipe() {
	for _, b := range [][]byte{s.RndA, s.RndB, s.SessionKey, s.PendingKey} {
		for i := range b {
			b[i] = 0
		}
	}
	s.RndA, s.RndB, s.SessionKey, s.PendingKey = nil, nil, nil, nil
	s.VerifyTokenHash = ""
	s.FramesHash = ""
}

// IdempotencyRecord stores the fingerprint and canned result of one
// mutating call so replays return byte-identical responses.
type IdempotencyRecord struct {
	Key    string `json:"key"`
	Result []byte `json:"result"`
	At     int64  `json:"at"`
}

// TransferSession is one server-side transfer attempt for a token.
//
// Sessions are memory-resident only: they carry live key material in
// Scratch and must not survive a restart. Durable outcome lives in the
// TransferRecord written at Begin and settled at the end.
type TransferSession struct {
	// ID is the session identifier.
	// Format: dvts-{ulid_lowercase}, 31 characters total.
	ID string `json:"id"`

	// TokenID is the token under transfer.
	TokenID string `json:"token_id"`

	// UserID is the initiating caller's user (the receiver).
	UserID string `json:"user_id"`

	// LeaseID is the lease acquired on the token at Begin.
	LeaseID string `json:"lease_id"`

	// State is the lifecycle state.
	State SessionState `json:"state"`

	// Phase tracks protocol progress while State is pending.
	Phase SessionPhase `json:"phase"`

	// FailureCode records the error kind that ended a failed session.
	FailureCode string `json:"failure_code,omitempty"`

	// KeyVersion is the token's key generation at Begin; the suite and
	// card key for the whole session are fixed by it.
	KeyVersion uint32 `json:"key_version"`

	// RecordID is the durable transfer record opened at Begin.
	RecordID string `json:"record_id"`

	// CreatedAt is the session creation timestamp (Unix milliseconds).
	CreatedAt int64 `json:"created_at"`

	// ExpiresAt is the lease deadline (Unix milliseconds). Fixed at
	// Begin; never extended.
	ExpiresAt int64 `json:"expires_at"`

	// Scratch is the in-memory cryptographic working state.
	Scratch Scratch `json:"-"`

	// Idempotency is the bounded replay cache, oldest first.
	Idempotency []IdempotencyRecord `json:"-"`

	// Version is the optimistic lock version number.
	Version uint64 `json:"version"`
}

// NewTransferSession creates a pending session for tokenID held by
// userID, expiring after ttl.
func NewTransferSession(tokenID, userID string, keyVersion uint32, ttl time.Duration) (*TransferSession, error) {
	id, err := GenerateID(SessionIDPrefix)
	if err != nil {
		return nil, err
	}
	leaseID, err := GenerateID(LeaseIDPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &TransferSession{
		ID:         id,
		TokenID:    tokenID,
		UserID:     userID,
		LeaseID:    leaseID,
		State:      SessionPending,
		Phase:      PhaseAuth,
		KeyVersion: keyVersion,
		CreatedAt:  now.UnixMilli(),
		ExpiresAt:  now.Add(ttl).UnixMilli(),
		Version:    1,
	}, nil
}

// IsExpired returns true if the session's lease deadline has passed.
func (s *TransferSession) IsExpired() bool {
	return time.Now().UnixMilli() > s.ExpiresAt
}

// IsTerminal returns true once the session reached a final state.
func (s *TransferSession) IsTerminal() bool {
	return s.State == SessionComplete || s.State == SessionFailed
}

// Complete marks the session complete and wipes key material.
func (s *TransferSession) Complete() {
	s.State = SessionComplete
	s.Scratch.Wipe()
}

// Fail marks the session failed with the given error kind and wipes
// key material.
func (s *TransferSession) Fail(code string) {
	s.State = SessionFailed
	s.FailureCode = code
	s.Scratch.Wipe()
}

// RememberResult appends an idempotency record, evicting the oldest
// entry once the cache is full.
func (s *TransferSession) RememberResult(key string, result []byte) {
	if key == "" {
		return
	}
	s.Idempotency = append(s.Idempotency, IdempotencyRecord{
		Key:    key,
		Result: result,
		At:     time.Now().UnixMilli(),
	})
	if len(s.Idempotency) > MaxIdempotencyRecords {
		s.Idempotency = s.Idempotency[len(s.Idempotency)-MaxIdempotencyRecords:]
	}
}

// ReplayResult returns the stored result for an idempotency key.
func (s *TransferSession) ReplayResult(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	for i := range s.Idempotency {
		if s.Idempotency[i].Key == key {
			return s.Idempotency[i].Result, true
		}
	}
	return nil, false
}

// IncrVersion increments the version number for optimistic locking.
func (s *TransferSession) IncrVersion() {
	s.Version++
}

// GetVersion returns the current version for optimistic locking.
// Implements the Versioned interface from pkg/cmap.
func (s *TransferSession) GetVersion() uint64 {
	return s.Version
}

// SetVersion sets the version number for optimistic locking.
// Implements the Versioned interface from pkg/cmap.
func (s *TransferSession) SetVersion(v uint64) {
	s.Version = v
}

// Validate validates the session fields against constraints.
func (s *TransferSession) Validate() error {
	var violations []string

	if !IsValidID(s.ID, SessionIDPrefix) {
		violations = append(violations, "id format invalid")
	}
	if !IsValidTokenID(s.TokenID) {
		violations = append(violations, "token_id format invalid")
	}
	if s.UserID == "" {
		violations = append(violations, "user_id is required")
	}
	if len(s.UserID) > MaxOwnerIDLength {
		violations = append(violations, "user_id exceeds 128 characters")
	}

	if len(violations) > 0 {
		return ErrInvalidRequest.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the session, scratch included.
func (s *TransferSession) Clone() *TransferSession {
	clone := *s
	clone.Scratch = Scratch{
		AuthState:         s.Scratch.AuthState,
		RndA:              append([]byte(nil), s.Scratch.RndA...),
		RndB:              append([]byte(nil), s.Scratch.RndB...),
		SessionKey:        append([]byte(nil), s.Scratch.SessionKey...),
		PendingKey:        append([]byte(nil), s.Scratch.PendingKey...),
		PendingKeyVersion: s.Scratch.PendingKeyVersion,
		VerifyTokenHash:   s.Scratch.VerifyTokenHash,
		FramesHash:        s.Scratch.FramesHash,
	}
	if s.Idempotency != nil {
		clone.Idempotency = make([]IdempotencyRecord, len(s.Idempotency))
		copy(clone.Idempotency, s.Idempotency)
	}
	return &clone
}

// CreatedAtTime returns CreatedAt as time.Time.
func (s *TransferSession) CreatedAtTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// ExpiresAtTime returns ExpiresAt as time.Time.
func (s *TransferSession) ExpiresAtTime() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}

// IsValidSessionID checks if a string is a valid session ID format.
func IsValidSessionID(id string) bool {
	return IsValidID(id, SessionIDPrefix)
}

// NormalizeSessionID normalizes a session ID to lowercase.
// Returns empty string if the ID is invalid.
func NormalizeSessionID(id string) string {
	return NormalizeID(id, SessionIDPrefix)
}
