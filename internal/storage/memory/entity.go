package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/storage"
)

// TokenStore provides in-memory token storage with optimistic locking.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*domain.Token
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*domain.Token),
	}
}

// Get retrieves a token by ID.
func (s *TokenStore) Get(_ context.Context, tokenID string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[domain.NormalizeTokenID(tokenID)]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}

	return token.Clone(), nil
}

// Create stores a new token.
func (s *TokenStore) Create(_ context.Context, token *domain.Token) error {
	if err := token.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.ID]; exists {
		return domain.ErrInvalidRequest.WithDetails(
			fmt.Sprintf("token %s already provisioned", token.ID))
	}

	s.tokens[token.ID] = token.Clone()
	return nil
}

// Update writes a token back with optimistic locking.
func (s *TokenStore) Update(_ context.Context, token *domain.Token, expectedVersion uint64) error {
	if err := token.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tokens[token.ID]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if existing.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	clone := token.Clone()
	clone.Version = expectedVersion + 1
	s.tokens[token.ID] = clone
	token.Version = clone.Version

	return nil
}

// List returns all provisioned tokens.
func (s *TokenStore) List(_ context.Context) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]*domain.Token, 0, len(s.tokens))
	for _, token := range s.tokens {
		tokens = append(tokens, token.Clone())
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })

	return tokens, nil
}

// RecordStore provides in-memory transfer record storage.
type RecordStore struct {
	mu        sync.RWMutex
	records   map[string]*domain.TransferRecord
	bySession map[string]string
	byToken   map[string][]string
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records:   make(map[string]*domain.TransferRecord),
		bySession: make(map[string]string),
		byToken:   make(map[string][]string),
	}
}

// Create stores a new pending record and its indexes.
func (s *RecordStore) Create(_ context.Context, record *domain.TransferRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = record.Clone()
	s.bySession[record.SessionID] = record.ID
	s.byToken[record.TokenID] = append(s.byToken[record.TokenID], record.ID)

	return nil
}

// Get retrieves a record by ID.
func (s *RecordStore) Get(_ context.Context, recordID string) (*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordID]
	if !ok {
		return nil, domain.ErrInvalidRequest.WithDetails("transfer record not found")
	}

	return record.Clone(), nil
}

// GetBySession retrieves the record created for a session, if any.
func (s *RecordStore) GetBySession(_ context.Context, sessionID string) (*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySession[sessionID]
	if !ok {
		return nil, domain.ErrInvalidRequest.WithDetails("no transfer record for session")
	}

	return s.records[id].Clone(), nil
}

// Update writes a record back with optimistic locking.
func (s *RecordStore) Update(_ context.Context, record *domain.TransferRecord, expectedVersion uint64) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[record.ID]
	if !ok {
		return domain.ErrInvalidRequest.WithDetails("transfer record not found")
	}
	if existing.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	clone := record.Clone()
	clone.Version = expectedVersion + 1
	s.records[record.ID] = clone
	record.Version = clone.Version

	return nil
}

// ListByToken returns all records for a token, oldest first.
func (s *RecordStore) ListByToken(_ context.Context, tokenID string) ([]*domain.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byToken[tokenID]
	records := make([]*domain.TransferRecord, 0, len(ids))
	for _, id := range ids {
		if record, ok := s.records[id]; ok {
			records = append(records, record.Clone())
		}
	}

	return records, nil
}

// AuditStore provides in-memory append-only audit storage.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*domain.AuditLogEntry
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append stores a new audit entry.
func (s *AuditStore) Append(_ context.Context, entry *domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	s.entries = append(s.entries, &clone)
	return nil
}

// List returns audit entries in append order, applying the filter.
func (s *AuditStore) List(_ context.Context, filter storage.AuditFilter) ([]*domain.AuditLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AuditLogEntry
	for _, entry := range s.entries {
		if filter.AfterID != "" && entry.ID <= filter.AfterID {
			continue
		}
		if filter.TokenID != "" && entry.TokenID != filter.TokenID {
			continue
		}
		if filter.Event != "" && entry.Event != filter.Event {
			continue
		}

		clone := *entry
		out = append(out, &clone)
		if len(out) >= limit {
			break
		}
	}

	return out, nil
}

// Len returns the number of stored entries.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
