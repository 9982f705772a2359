package memory

import (
	"context"
	"sync"

	"github.com/swapdotz/dotvault/internal/core/domain"
)

// APIKeyStore provides in-memory storage for API keys.
//
// It mirrors the durable store's interface so tests and the demo
// tooling can run without a Badger directory.
type APIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*domain.APIKey
}

// NewAPIKeyStore creates a new API key store.
func NewAPIKeyStore() *APIKeyStore {
	return &APIKeyStore{
		keys: make(map[string]*domain.APIKey),
	}
}

// Get retrieves an API key by ID.
func (s *APIKeyStore) Get(_ context.Context, keyID string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[domain.NormalizeAPIKeyID(keyID)]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}

	return key.Clone(), nil
}

// Create creates a new API key.
func (s *APIKeyStore) Create(_ context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.KeyID]; exists {
		return domain.ErrAPIKeyConflict
	}

	s.keys[key.KeyID] = key.Clone()
	return nil
}

// Update updates an existing API key with optimistic locking.
func (s *APIKeyStore) Update(_ context.Context, key *domain.APIKey, expectedVersion uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.keys[key.KeyID]
	if !exists {
		return domain.ErrAPIKeyNotFound
	}
	if existing.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	clone := key.Clone()
	clone.Version = expectedVersion + 1
	s.keys[key.KeyID] = clone
	key.Version = clone.Version

	return nil
}

// Delete deletes an API key by ID.
func (s *APIKeyStore) Delete(_ context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.NormalizeAPIKeyID(keyID)
	if _, exists := s.keys[id]; !exists {
		return domain.ErrAPIKeyNotFound
	}

	delete(s.keys, id)
	return nil
}

// List retrieves all API keys.
func (s *APIKeyStore) List(_ context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*domain.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		keys = append(keys, key.Clone())
	}

	return keys, nil
}
