package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/protocol"
	"github.com/swapdotz/dotvault/internal/storage"
)

// TokenService handles token provisioning and registry queries.
type TokenService struct {
	tokens  TokenRepository
	records RecordRepository
	audit   AuditLog
	keys    KeyProvider
	logger  *slog.Logger
}

// NewTokenService creates a TokenService.
func NewTokenService(tokens TokenRepository, records RecordRepository, audit AuditLog, keys KeyProvider, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TokenService{
		tokens:  tokens,
		records: records,
		audit:   audit,
		keys:    keys,
		logger:  logger,
	}
}

// ============================================================================
// Provision Operation
// ============================================================================

// ProvisionTokenRequest registers a physical token.
type ProvisionTokenRequest struct {
	UID      string          // Required: hex card UID
	OwnerID  string          // Required: initial owner
	Metadata domain.Metadata // Optional display attributes

	// InitialKey is the card's factory-personalized generation-zero
	// key. When empty, the key store derives it instead.
	InitialKey []byte
}

// ProvisionTokenResponse contains the registered token.
type ProvisionTokenResponse struct {
	Token *domain.Token `json:"token"`
}

// Provision registers a token under its initial owner at key
// generation zero. Provisioning an already registered UID fails.
func (s *TokenService) Provision(ctx context.Context, req *ProvisionTokenRequest) (*ProvisionTokenResponse, error) {
	// 1. Build and validate the token
	tok, err := domain.NewToken(req.UID, req.OwnerID)
	if err != nil {
		return nil, err
	}
	tok.Metadata = req.Metadata
	if err := tok.Validate(); err != nil {
		return nil, err
	}
	if len(req.InitialKey) != 0 && len(req.InitialKey) != protocol.CardKeySize {
		return nil, domain.ErrInvalidRequest.WithDetails("initial key must be 16 bytes")
	}

	// 2. Register
	if err := s.tokens.Create(ctx, tok); err != nil {
		return nil, err
	}
	if len(req.InitialKey) != 0 {
		if err := s.keys.Put(ctx, tok.ID, tok.KeyVersion, req.InitialKey); err != nil {
			return nil, err
		}
	}

	// 3. Audit
	s.auditEvent(ctx, domain.AuditTokenProvisioned, tok.ID, func(e *domain.AuditLogEntry) {
		e.ToOwner = tok.OwnerID
		e.KeyVersion = tok.KeyVersion
	})

	s.logger.Info("token provisioned",
		"token_id", tok.ID,
		"owner_id", tok.OwnerID,
	)
	return &ProvisionTokenResponse{Token: tok}, nil
}

// ============================================================================
// Registry Queries
// ============================================================================

// Get retrieves a token by its card UID.
func (s *TokenService) Get(ctx context.Context, tokenID string) (*domain.Token, error) {
	return s.tokens.Get(ctx, tokenID)
}

// List retrieves all registered tokens.
func (s *TokenService) List(ctx context.Context) ([]*domain.Token, error) {
	return s.tokens.List(ctx)
}

// History retrieves the transfer records for a token, oldest first.
func (s *TokenService) History(ctx context.Context, tokenID string) ([]*domain.TransferRecord, error) {
	normalized := domain.NormalizeTokenID(tokenID)
	if normalized == "" {
		return nil, domain.ErrInvalidRequest.WithDetails("token_id must be a hex card uid")
	}
	if _, err := s.tokens.Get(ctx, normalized); err != nil {
		return nil, err
	}
	return s.records.ListByToken(ctx, normalized)
}

// AuditTrail retrieves audit entries matching the filter.
func (s *TokenService) AuditTrail(ctx context.Context, filter storage.AuditFilter) ([]*domain.AuditLogEntry, error) {
	return s.audit.List(ctx, filter)
}

// ============================================================================
// Retire Operation
// ============================================================================

// Retire takes a token out of circulation. A token under an active
// lease cannot be retired.
func (s *TokenService) Retire(ctx context.Context, tokenID string) (*domain.Token, error) {
	for attempt := 0; ; attempt++ {
		tok, err := s.tokens.Get(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if tok.Status == domain.TokenStatusRetired {
			return tok, nil
		}
		if tok.IsLocked() {
			return nil, domain.ErrTokenLocked.WithDetails("token is under an active transfer")
		}
		ver := tok.Version
		tok.Status = domain.TokenStatusRetired
		err = s.tokens.Update(ctx, tok, ver)
		if err == nil {
			s.logger.Info("token retired", "token_id", tok.ID)
			return tok, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= casRetries {
			return nil, err
		}
	}
}

// auditEvent mirrors the transfer service helper for registry events.
func (s *TokenService) auditEvent(ctx context.Context, event domain.AuditEvent, tokenID string, fill func(*domain.AuditLogEntry)) {
	entry, err := domain.NewAuditLogEntry(event, tokenID)
	if err != nil {
		s.logger.Error("audit entry build failed", "event", event, "error", err)
		return
	}
	if fill != nil {
		fill(entry)
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.logger.Error("audit append failed", "event", event, "token_id", tokenID, "error", err)
	}
}
