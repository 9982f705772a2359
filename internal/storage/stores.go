package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/swapdotz/dotvault/internal/core/domain"
)

// Key prefixes for the durable entity namespaces.
const (
	prefixToken         = "tokens/"
	prefixRecord        = "records/"
	prefixRecordSession = "recidx/session/"
	prefixRecordToken   = "recidx/token/"
	prefixAudit         = "audit/"
	prefixAPIKey        = "apikeys/"
)

func tokenKey(id string) []byte   { return []byte(prefixToken + id) }
func recordKey(id string) []byte  { return []byte(prefixRecord + id) }
func auditKey(id string) []byte   { return []byte(prefixAudit + id) }
func apiKeyKey(id string) []byte  { return []byte(prefixAPIKey + id) }
func recSessKey(id string) []byte { return []byte(prefixRecordSession + id) }

func recTokenKey(tokenID, recordID string) []byte {
	return []byte(prefixRecordToken + tokenID + "/" + recordID)
}

// storageErr wraps a low-level engine failure into a domain error.
func storageErr(op string, err error) error {
	return domain.ErrStorageError.WithDetails(op).WithCause(err)
}

// TokenStore persists tokens in the KV engine with optimistic locking.
type TokenStore struct {
	kv KVEngine
}

// NewTokenStore creates a token store on top of the KV engine.
func NewTokenStore(kv KVEngine) *TokenStore {
	return &TokenStore{kv: kv}
}

// Get retrieves a token by ID.
func (s *TokenStore) Get(ctx context.Context, tokenID string) (*domain.Token, error) {
	raw, err := s.kv.Get(ctx, tokenKey(domain.NormalizeTokenID(tokenID)))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, storageErr("get token", err)
	}

	var token domain.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, storageErr("decode token", err)
	}

	return &token, nil
}

// Create stores a new token. Fails if the UID is already provisioned.
func (s *TokenStore) Create(ctx context.Context, token *domain.Token) error {
	if err := token.Validate(); err != nil {
		return err
	}

	key := tokenKey(token.ID)
	err := s.kv.Update(ctx, func(tx KVTxn) error {
		if _, err := tx.Get(key); err == nil {
			return domain.ErrInvalidRequest.WithDetails(
				fmt.Sprintf("token %s already provisioned", token.ID))
		} else if !errors.Is(err, ErrKeyNotFound) {
			return err
		}

		raw, err := json.Marshal(token)
		if err != nil {
			return err
		}
		return tx.Set(key, raw)
	})
	if err != nil {
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return err
		}
		return storageErr("create token", err)
	}

	return nil
}

// Update writes a token back with optimistic locking. The stored version
// must equal expectedVersion; on success the token's version is bumped.
func (s *TokenStore) Update(ctx context.Context, token *domain.Token, expectedVersion uint64) error {
	if err := token.Validate(); err != nil {
		return err
	}

	key := tokenKey(token.ID)
	err := s.kv.Update(ctx, func(tx KVTxn) error {
		raw, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return domain.ErrTokenNotFound
			}
			return err
		}

		var existing domain.Token
		if err := json.Unmarshal(raw, &existing); err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		clone := token.Clone()
		clone.Version = expectedVersion + 1

		out, err := json.Marshal(clone)
		if err != nil {
			return err
		}
		if err := tx.Set(key, out); err != nil {
			return err
		}

		token.Version = clone.Version
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTxnConflict) {
			return domain.ErrVersionConflict
		}
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return err
		}
		return storageErr("update token", err)
	}

	return nil
}

// List returns all provisioned tokens.
func (s *TokenStore) List(ctx context.Context) ([]*domain.Token, error) {
	var tokens []*domain.Token
	var decodeErr error

	err := s.kv.Scan(ctx, []byte(prefixToken), func(_, value []byte) bool {
		var token domain.Token
		if err := json.Unmarshal(value, &token); err != nil {
			decodeErr = err
			return false
		}
		tokens = append(tokens, &token)
		return true
	})
	if err != nil {
		return nil, storageErr("list tokens", err)
	}
	if decodeErr != nil {
		return nil, storageErr("decode token", decodeErr)
	}

	return tokens, nil
}

// RecordStore persists transfer records plus lookup indexes by session
// and by token.
type RecordStore struct {
	kv KVEngine
}

// NewRecordStore creates a record store on top of the KV engine.
func NewRecordStore(kv KVEngine) *RecordStore {
	return &RecordStore{kv: kv}
}

// Create stores a new pending record and its indexes atomically.
func (s *RecordStore) Create(ctx context.Context, record *domain.TransferRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	err := s.kv.Update(ctx, func(tx KVTxn) error {
		raw, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := tx.Set(recordKey(record.ID), raw); err != nil {
			return err
		}
		if err := tx.Set(recSessKey(record.SessionID), []byte(record.ID)); err != nil {
			return err
		}
		return tx.Set(recTokenKey(record.TokenID, record.ID), nil)
	})
	if err != nil {
		return storageErr("create record", err)
	}

	return nil
}

// Get retrieves a record by ID.
func (s *RecordStore) Get(ctx context.Context, recordID string) (*domain.TransferRecord, error) {
	raw, err := s.kv.Get(ctx, recordKey(recordID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrInvalidRequest.WithDetails("transfer record not found")
		}
		return nil, storageErr("get record", err)
	}

	var record domain.TransferRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, storageErr("decode record", err)
	}

	return &record, nil
}

// GetBySession retrieves the record created for a session, if any.
func (s *RecordStore) GetBySession(ctx context.Context, sessionID string) (*domain.TransferRecord, error) {
	id, err := s.kv.Get(ctx, recSessKey(sessionID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrInvalidRequest.WithDetails("no transfer record for session")
		}
		return nil, storageErr("get record index", err)
	}

	return s.Get(ctx, string(id))
}

// Update writes a record back with optimistic locking.
func (s *RecordStore) Update(ctx context.Context, record *domain.TransferRecord, expectedVersion uint64) error {
	if err := record.Validate(); err != nil {
		return err
	}

	key := recordKey(record.ID)
	err := s.kv.Update(ctx, func(tx KVTxn) error {
		raw, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return domain.ErrInvalidRequest.WithDetails("transfer record not found")
			}
			return err
		}

		var existing domain.TransferRecord
		if err := json.Unmarshal(raw, &existing); err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		clone := record.Clone()
		clone.Version = expectedVersion + 1

		out, err := json.Marshal(clone)
		if err != nil {
			return err
		}
		if err := tx.Set(key, out); err != nil {
			return err
		}

		record.Version = clone.Version
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTxnConflict) {
			return domain.ErrVersionConflict
		}
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return err
		}
		return storageErr("update record", err)
	}

	return nil
}

// ListByToken returns all records for a token, oldest first.
func (s *RecordStore) ListByToken(ctx context.Context, tokenID string) ([]*domain.TransferRecord, error) {
	prefix := []byte(prefixRecordToken + tokenID + "/")

	var ids []string
	err := s.kv.Scan(ctx, prefix, func(key, _ []byte) bool {
		ids = append(ids, strings.TrimPrefix(string(key), string(prefix)))
		return true
	})
	if err != nil {
		return nil, storageErr("list records", err)
	}

	records := make([]*domain.TransferRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	// TokenID restricts results to a single token.
	TokenID string

	// Event restricts results to a single event type.
	Event domain.AuditEvent

	// AfterID resumes listing after the given entry ID (pagination cursor).
	AfterID string

	// Limit caps the number of entries returned (default 100, max 1000).
	Limit int
}

// AuditStore persists the append-only audit log.
//
// Entry IDs embed a ULID, so the natural key order of the audit/
// namespace is chronological.
type AuditStore struct {
	kv KVEngine
}

// NewAuditStore creates an audit store on top of the KV engine.
func NewAuditStore(kv KVEngine) *AuditStore {
	return &AuditStore{kv: kv}
}

// Append stores a new audit entry. Entries are never updated or deleted.
func (s *AuditStore) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return storageErr("encode audit entry", err)
	}
	if err := s.kv.Set(ctx, auditKey(entry.ID), raw); err != nil {
		return storageErr("append audit entry", err)
	}
	return nil
}

// List returns audit entries in chronological order, applying the filter.
func (s *AuditStore) List(ctx context.Context, filter AuditFilter) ([]*domain.AuditLogEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	} else if limit > 1000 {
		limit = 1000
	}

	var entries []*domain.AuditLogEntry
	var decodeErr error

	err := s.kv.Scan(ctx, []byte(prefixAudit), func(key, value []byte) bool {
		id := strings.TrimPrefix(string(key), prefixAudit)
		if filter.AfterID != "" && id <= filter.AfterID {
			return true
		}

		var entry domain.AuditLogEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			decodeErr = err
			return false
		}
		if filter.TokenID != "" && entry.TokenID != filter.TokenID {
			return true
		}
		if filter.Event != "" && entry.Event != filter.Event {
			return true
		}

		entries = append(entries, &entry)
		return len(entries) < limit
	})
	if err != nil {
		return nil, storageErr("list audit entries", err)
	}
	if decodeErr != nil {
		return nil, storageErr("decode audit entry", decodeErr)
	}

	return entries, nil
}

// storedAPIKey is the persistence envelope for API keys. The domain
// type never serializes its secret hash, so the hash rides alongside.
type storedAPIKey struct {
	Key        *domain.APIKey `json:"key"`
	SecretHash string         `json:"secret_hash"`
}

// APIKeyStore persists API keys in the KV engine.
type APIKeyStore struct {
	kv KVEngine
}

// NewAPIKeyStore creates an API key store on top of the KV engine.
func NewAPIKeyStore(kv KVEngine) *APIKeyStore {
	return &APIKeyStore{kv: kv}
}

// Get retrieves an API key by ID.
func (s *APIKeyStore) Get(ctx context.Context, keyID string) (*domain.APIKey, error) {
	raw, err := s.kv.Get(ctx, apiKeyKey(domain.NormalizeAPIKeyID(keyID)))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrAPIKeyNotFound
		}
		return nil, storageErr("get api key", err)
	}

	return decodeAPIKey(raw)
}

// Create stores a new API key.
func (s *APIKeyStore) Create(ctx context.Context, key *domain.APIKey) error {
	if err := key.Validate(); err != nil {
		return err
	}

	kk := apiKeyKey(key.KeyID)
	err := s.kv.Update(ctx, func(tx KVTxn) error {
		if _, err := tx.Get(kk); err == nil {
			return domain.ErrAPIKeyConflict
		} else if !errors.Is(err, ErrKeyNotFound) {
			return err
		}

		raw, err := encodeAPIKey(key)
		if err != nil {
			return err
		}
		return tx.Set(kk, raw)
	})
	if err != nil {
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return err
		}
		return storageErr("create api key", err)
	}

	return nil
}

// Update writes an API key back with optimistic locking.
func (s *APIKeyStore) Update(ctx context.Context, key *domain.APIKey, expectedVersion uint64) error {
	if err := key.Validate(); err != nil {
		return err
	}

	kk := apiKeyKey(key.KeyID)
	err := s.kv.Update(ctx, func(tx KVTxn) error {
		raw, err := tx.Get(kk)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return domain.ErrAPIKeyNotFound
			}
			return err
		}

		existing, err := decodeAPIKey(raw)
		if err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		clone := key.Clone()
		clone.Version = expectedVersion + 1

		out, err := encodeAPIKey(clone)
		if err != nil {
			return err
		}
		if err := tx.Set(kk, out); err != nil {
			return err
		}

		key.Version = clone.Version
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTxnConflict) {
			return domain.ErrVersionConflict
		}
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return err
		}
		return storageErr("update api key", err)
	}

	return nil
}

// Delete removes an API key by ID.
func (s *APIKeyStore) Delete(ctx context.Context, keyID string) error {
	kk := apiKeyKey(domain.NormalizeAPIKeyID(keyID))
	err := s.kv.Update(ctx, func(tx KVTxn) error {
		if _, err := tx.Get(kk); err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return domain.ErrAPIKeyNotFound
			}
			return err
		}
		return tx.Delete(kk)
	})
	if err != nil {
		var derr *domain.DomainError
		if errors.As(err, &derr) {
			return err
		}
		return storageErr("delete api key", err)
	}

	return nil
}

// List retrieves all API keys.
func (s *APIKeyStore) List(ctx context.Context) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	var decodeErr error

	err := s.kv.Scan(ctx, []byte(prefixAPIKey), func(_, value []byte) bool {
		key, err := decodeAPIKey(value)
		if err != nil {
			decodeErr = err
			return false
		}
		keys = append(keys, key)
		return true
	})
	if err != nil {
		return nil, storageErr("list api keys", err)
	}
	if decodeErr != nil {
		return nil, storageErr("decode api key", decodeErr)
	}

	return keys, nil
}

func encodeAPIKey(key *domain.APIKey) ([]byte, error) {
	return json.Marshal(storedAPIKey{Key: key, SecretHash: key.SecretHash})
}

func decodeAPIKey(raw []byte) (*domain.APIKey, error) {
	var stored storedAPIKey
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	if stored.Key == nil {
		return nil, errors.New("empty api key envelope")
	}
	stored.Key.SecretHash = stored.SecretHash
	return stored.Key, nil
}
