package service

import (
	"context"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/storage"
)

// TokenRepository defines the storage interface for the token registry.
type TokenRepository interface {
	// Get retrieves a token by its card UID.
	Get(ctx context.Context, tokenID string) (*domain.Token, error)

	// Create registers a new token.
	Create(ctx context.Context, token *domain.Token) error

	// Update persists a token under optimistic locking.
	Update(ctx context.Context, token *domain.Token, expectedVersion uint64) error

	// List retrieves all registered tokens.
	List(ctx context.Context) ([]*domain.Token, error)
}

// SessionRepository defines the storage interface for transfer
// sessions. Sessions are memory-resident; implementations must not
// persist them.
type SessionRepository interface {
	// Create stores a new session.
	Create(ctx context.Context, session *domain.TransferSession) error

	// Get retrieves a session by ID, regardless of state.
	Get(ctx context.Context, id string) (*domain.TransferSession, error)

	// GetByToken retrieves the live (pending, unexpired) session
	// holding the given token, if any.
	GetByToken(ctx context.Context, tokenID string) (*domain.TransferSession, error)

	// Update persists a session under optimistic locking.
	Update(ctx context.Context, session *domain.TransferSession, expectedVersion uint64) error

	// Delete removes a session and wipes its scratch state.
	Delete(ctx context.Context, id string) error

	// Expired returns all pending sessions past their deadline.
	Expired(ctx context.Context) ([]*domain.TransferSession, error)

	// DeleteTerminal removes terminal sessions whose deadline passed
	// before cutoff and returns the count removed.
	DeleteTerminal(ctx context.Context, cutoff int64) (int, error)
}

// RecordRepository defines the storage interface for durable transfer
// records.
type RecordRepository interface {
	// Create stores a new transfer record.
	Create(ctx context.Context, record *domain.TransferRecord) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, recordID string) (*domain.TransferRecord, error)

	// GetBySession retrieves the record opened by a session.
	GetBySession(ctx context.Context, sessionID string) (*domain.TransferRecord, error)

	// Update persists a record under optimistic locking.
	Update(ctx context.Context, record *domain.TransferRecord, expectedVersion uint64) error

	// ListByToken retrieves all records for a token.
	ListByToken(ctx context.Context, tokenID string) ([]*domain.TransferRecord, error)
}

// AuditLog defines the storage interface for the append-only audit
// trail.
type AuditLog interface {
	// Append stores one audit entry.
	Append(ctx context.Context, entry *domain.AuditLogEntry) error

	// List retrieves entries matching the filter, oldest first.
	List(ctx context.Context, filter storage.AuditFilter) ([]*domain.AuditLogEntry, error)
}

// KeyProvider supplies card master keys per token and generation.
type KeyProvider interface {
	// CardKey returns the key for tokenID at the given generation.
	CardKey(ctx context.Context, tokenID string, generation uint32) ([]byte, error)

	// Derive computes the deterministic key for tokenID at the given
	// generation without consulting storage.
	Derive(tokenID string, generation uint32) []byte

	// Put stores an explicit key for tokenID at the given generation.
	Put(ctx context.Context, tokenID string, generation uint32, key []byte) error
}

// APIKeyRepository defines the storage interface for API keys.
type APIKeyRepository interface {
	// Get retrieves an API key by its key ID.
	Get(ctx context.Context, keyID string) (*domain.APIKey, error)

	// Create stores a new API key.
	Create(ctx context.Context, key *domain.APIKey) error

	// Update persists an API key under optimistic locking.
	Update(ctx context.Context, key *domain.APIKey, expectedVersion uint64) error

	// Delete removes an API key.
	Delete(ctx context.Context, keyID string) error

	// List retrieves all API keys.
	List(ctx context.Context) ([]*domain.APIKey, error)
}
