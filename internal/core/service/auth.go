package service

import (
	"container/list"
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/pkg/token"
)

// AuthService handles API key authentication, authorization, and per-key
// rate limiting. Every key is bound to a user; transfer calls
// authenticated with a key act as that user.
type AuthService struct {
	repo         APIKeyRepository
	cache        *APIKeyCache
	rateLimiters *RateLimiterRegistry
	logger       *slog.Logger
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// CacheTTL is the cache time-to-live for validated API keys.
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached API keys.
	CacheSize int
}

// DefaultAuthServiceConfig returns default configuration.
func DefaultAuthServiceConfig() *AuthServiceConfig {
	return &AuthServiceConfig{
		CacheTTL:  60 * time.Second,
		CacheSize: 1024,
	}
}

// NewAuthService creates an AuthService.
func NewAuthService(repo APIKeyRepository, config *AuthServiceConfig, logger *slog.Logger) *AuthService {
	if config == nil {
		config = DefaultAuthServiceConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AuthService{
		repo:         repo,
		cache:        NewAPIKeyCache(config.CacheSize, config.CacheTTL),
		rateLimiters: NewRateLimiterRegistry(),
		logger:       logger,
	}
}

// ============================================================================
// Validation
// ============================================================================

// ValidateAPIKey checks a presented key ID and secret and returns the
// key entity on success. Lookup misses and hash mismatches collapse
// into the same UNAUTHORIZED answer so the key ID space cannot be
// probed.
func (s *AuthService) ValidateAPIKey(ctx context.Context, keyID, secret string) (*domain.APIKey, error) {
	// 1. Presence and format
	if keyID == "" || secret == "" {
		return nil, domain.ErrAPIKeyMissing
	}
	normalized := domain.NormalizeAPIKeyID(keyID)
	if normalized == "" {
		return nil, domain.ErrAPIKeyInvalid
	}

	// 2. Cache, then storage
	key := s.cache.Get(normalized)
	if key == nil {
		var err error
		key, err = s.repo.Get(ctx, normalized)
		if err != nil {
			return nil, domain.ErrAPIKeyInvalid
		}
		s.cache.Put(normalized, key)
	}

	// 3. Secret, status, expiry
	if !key.VerifySecret(secret) {
		return nil, domain.ErrAPIKeyInvalid
	}
	if key.Status == domain.KeyStatusDisabled {
		return nil, domain.ErrAPIKeyDisabled
	}
	if key.IsExpired() {
		return nil, domain.ErrAPIKeyInvalid.WithDetails("api key expired")
	}

	// 4. Record usage, at most once per minute per key
	s.touch(ctx, key)

	return key, nil
}

// touchInterval throttles LastUsed writes.
const touchInterval = time.Minute

func (s *AuthService) touch(ctx context.Context, key *domain.APIKey) {
	now := time.Now().UnixMilli()
	if now-key.LastUsed < touchInterval.Milliseconds() {
		return
	}
	fresh, err := s.repo.Get(ctx, key.KeyID)
	if err != nil {
		return
	}
	ver := fresh.Version
	fresh.Touch()
	if err := s.repo.Update(ctx, fresh, ver); err != nil {
		// A concurrent touch won the race; nothing lost.
		return
	}
	key.LastUsed = fresh.LastUsed
}

// CheckPermission verifies the key's role grants the permission.
func (s *AuthService) CheckPermission(key *domain.APIKey, perm domain.Permission) error {
	if !domain.HasPermission(key.Role, perm) {
		return domain.ErrPermissionDenied.WithDetails(string(perm) + " requires a higher role")
	}
	return nil
}

// CheckRateLimit enforces the key's sustained request rate. The
// returned error carries the retry delay when the limit is hit.
func (s *AuthService) CheckRateLimit(key *domain.APIKey) error {
	limiter := s.rateLimiters.GetOrCreate(key.KeyID, key.RateLimit)
	reservation := limiter.Reserve()
	if !reservation.OK() {
		return domain.ErrRateLimited
	}
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return domain.ErrRateLimited.WithDetails(
			"retry after " + strconv.Itoa(int(delay.Milliseconds())+1) + "ms")
	}
	return nil
}

// ============================================================================
// APIKeyCache - LRU cache with TTL
// ============================================================================

// APIKeyCache caches validated API keys to avoid a storage read per
// request. Entries expire after a TTL and the least recently used
// entry is evicted at capacity.
type APIKeyCache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

type apiKeyCacheEntry struct {
	keyID     string
	key       *domain.APIKey
	expiresAt time.Time
}

// NewAPIKeyCache creates a cache holding up to capacity keys for ttl.
func NewAPIKeyCache(capacity int, ttl time.Duration) *APIKeyCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &APIKeyCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached key, or nil on a miss or expired entry.
func (c *APIKeyCache) Get(keyID string) *domain.APIKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[keyID]
	if !ok {
		return nil
	}
	entry := elem.Value.(*apiKeyCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, keyID)
		return nil
	}
	c.order.MoveToFront(elem)
	return entry.key
}

// Put stores a key, evicting the least recently used entry at capacity.
func (c *APIKeyCache) Put(keyID string, key *domain.APIKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[keyID]; ok {
		entry := elem.Value.(*apiKeyCacheEntry)
		entry.key = key
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		delete(c.items, oldest.Value.(*apiKeyCacheEntry).keyID)
		c.order.Remove(oldest)
	}

	c.items[keyID] = c.order.PushFront(&apiKeyCacheEntry{
		keyID:     keyID,
		key:       key,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes a key from the cache.
func (c *APIKeyCache) Delete(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[keyID]; ok {
		c.order.Remove(elem)
		delete(c.items, keyID)
	}
}

// Clear removes all entries.
func (c *APIKeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Size returns the current number of cached keys.
func (c *APIKeyCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// ============================================================================
// RateLimiterRegistry - per-key token buckets
// ============================================================================

// RateLimiterRegistry manages one token bucket per API key.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiterRegistry creates an empty registry.
func NewRateLimiterRegistry() *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
	}
}

// GetOrCreate returns the limiter for keyID, creating it with the
// given sustained QPS (burst equals the QPS) on first use.
func (r *RateLimiterRegistry) GetOrCreate(keyID string, rateLimit int) *rate.Limiter {
	r.mu.RLock()
	limiter, ok := r.limiters[keyID]
	r.mu.RUnlock()
	if ok {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[keyID]; ok {
		return limiter
	}
	if rateLimit < domain.MinRateLimit {
		rateLimit = domain.DefaultKeyRateLimit
	}
	limiter = rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	r.limiters[keyID] = limiter
	return limiter
}

// Delete removes the limiter for keyID.
func (r *RateLimiterRegistry) Delete(keyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, keyID)
}

// ============================================================================
// API Key Management Operations
// ============================================================================

// CreateAPIKeyRequest contains parameters for creating a new API key.
type CreateAPIKeyRequest struct {
	Name        string // Required
	UserID      string // Required: the user the key acts as
	Role        string // Required
	RateLimit   int    // Optional, defaults to DefaultKeyRateLimit
	Description string // Optional
	ExpiresAt   int64  // Optional absolute expiry (Unix MS), 0 = never
}

// CreateAPIKeyResponse contains the created key. Secret is the
// plaintext secret, returned only here.
type CreateAPIKeyResponse struct {
	Key    *domain.APIKey `json:"key"`
	Secret string         `json:"secret"`
}

// CreateAPIKey creates an API key bound to a user.
func (s *AuthService) CreateAPIKey(ctx context.Context, req *CreateAPIKeyRequest) (*CreateAPIKeyResponse, error) {
	if !domain.IsValidRole(req.Role) {
		return nil, domain.ErrInvalidRequest.WithDetails("invalid role")
	}
	key, plainSecret, err := domain.NewAPIKey(req.Name, req.UserID, domain.Role(req.Role))
	if err != nil {
		return nil, err
	}
	key.Description = req.Description
	key.ExpiresAt = req.ExpiresAt
	if req.RateLimit > 0 {
		key.RateLimit = req.RateLimit
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("api key created",
		"key_id", key.KeyID,
		"user_id", key.UserID,
		"role", key.Role,
	)
	return &CreateAPIKeyResponse{Key: key, Secret: plainSecret}, nil
}

// ListAPIKeys retrieves all API keys, secrets excluded.
func (s *AuthService) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return s.repo.List(ctx)
}

// GetAPIKey retrieves one API key, secret excluded.
func (s *AuthService) GetAPIKey(ctx context.Context, keyID string) (*domain.APIKey, error) {
	return s.repo.Get(ctx, keyID)
}

// UpdateAPIKeyStatus enables or disables an API key and drops it from
// the validation cache.
func (s *AuthService) UpdateAPIKeyStatus(ctx context.Context, keyID string, status domain.KeyStatus) (*domain.APIKey, error) {
	if !domain.IsValidKeyStatus(string(status)) {
		return nil, domain.ErrInvalidRequest.WithDetails("invalid status")
	}
	key, err := s.repo.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}
	ver := key.Version
	key.Status = status
	if err := s.repo.Update(ctx, key, ver); err != nil {
		return nil, err
	}
	s.cache.Delete(key.KeyID)

	s.logger.Info("api key status changed", "key_id", key.KeyID, "status", status)
	return key, nil
}

// RotateAPIKeyResponse carries the replacement secret.
type RotateAPIKeyResponse struct {
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"`
}

// RotateAPIKey replaces the key's secret. The old secret stops working
// as soon as the cache entry drops.
func (s *AuthService) RotateAPIKey(ctx context.Context, keyID string) (*RotateAPIKeyResponse, error) {
	key, err := s.repo.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}
	plainSecret, err := token.GenerateWithPrefix(token.PrefixAPIKey)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}
	ver := key.Version
	key.SecretHash = token.Hash(plainSecret)
	if err := s.repo.Update(ctx, key, ver); err != nil {
		return nil, err
	}
	s.cache.Delete(key.KeyID)

	s.logger.Info("api key secret rotated", "key_id", key.KeyID)
	return &RotateAPIKeyResponse{KeyID: key.KeyID, Secret: plainSecret}, nil
}

// DeleteAPIKey removes an API key.
func (s *AuthService) DeleteAPIKey(ctx context.Context, keyID string) error {
	if err := s.repo.Delete(ctx, keyID); err != nil {
		return err
	}
	s.cache.Delete(keyID)
	s.rateLimiters.Delete(keyID)
	s.logger.Info("api key deleted", "key_id", keyID)
	return nil
}
