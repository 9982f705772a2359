package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/protocol"
	"github.com/swapdotz/dotvault/pkg/apdu"
	"github.com/swapdotz/dotvault/pkg/crypto/suite"
)

// casRetries bounds optimistic-lock retry loops on the token entity.
const casRetries = 3

// TransferConfig tunes the transfer session lifecycle.
type TransferConfig struct {
	// SessionTTL is the lease duration fixed at Begin.
	SessionTTL time.Duration

	// MaxFrameData caps the data bytes per key change frame.
	MaxFrameData int

	// KeySlot is the card key slot used for transfers.
	KeySlot byte

	// TerminalRetention is how long terminal sessions stay queryable
	// before the sweeper removes them.
	TerminalRetention time.Duration
}

// DefaultTransferConfig returns the production defaults.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		SessionTTL:        domain.DefaultSessionTTL,
		MaxFrameData:      protocol.DefaultMaxFrameData,
		KeySlot:           protocol.DefaultKeySlot,
		TerminalRetention: 10 * time.Minute,
	}
}

// TransferService drives the server side of an ownership transfer:
// session leasing, card authentication, key rotation, and the final
// ownership commit. The server is the sole authority on ownership;
// the card only ever proves possession of its current key.
type TransferService struct {
	tokens   TokenRepository
	sessions SessionRepository
	records  RecordRepository
	audit    AuditLog
	keys     KeyProvider
	suites   *suite.Registry
	cfg      TransferConfig
	logger   *slog.Logger
}

// NewTransferService creates a TransferService. A nil suites registry
// gets the default CMAC cutover; a nil logger discards output.
func NewTransferService(
	tokens TokenRepository,
	sessions SessionRepository,
	records RecordRepository,
	audit AuditLog,
	keys KeyProvider,
	suites *suite.Registry,
	cfg TransferConfig,
	logger *slog.Logger,
) *TransferService {
	if suites == nil {
		suites = suite.NewRegistry(suite.DefaultCMACCutover)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = domain.DefaultSessionTTL
	}
	if cfg.MaxFrameData <= 0 {
		cfg.MaxFrameData = protocol.DefaultMaxFrameData
	}
	if cfg.TerminalRetention <= 0 {
		cfg.TerminalRetention = DefaultTransferConfig().TerminalRetention
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TransferService{
		tokens:   tokens,
		sessions: sessions,
		records:  records,
		audit:    audit,
		keys:     keys,
		suites:   suites,
		cfg:      cfg,
		logger:   logger,
	}
}

// ============================================================================
// Begin Operation
// ============================================================================

// BeginTransferRequest contains parameters for opening a transfer.
type BeginTransferRequest struct {
	TokenID string // Required: hex card UID
	UserID  string // Required: receiving user (the authenticated caller)
}

// BeginTransferResponse contains the result of opening a transfer.
type BeginTransferResponse struct {
	SessionID string   `json:"session_id"`
	LeaseID   string   `json:"lease_id"`
	RecordID  string   `json:"record_id"`
	ExpiresAt int64    `json:"expires_at"`
	Commands  []string `json:"commands"` // card commands in relay order, base64
}

// Begin opens a transfer session for a token.
//
// It acquires the token lease, opens a pending transfer record, and
// emits the first authentication command for the relay. The lease
// deadline is fixed here and never extended. A token already leased to
// another user is rejected with TOKEN_LOCKED; a lease held by the same
// user is taken over, superseding the stale session.
func (s *TransferService) Begin(ctx context.Context, req *BeginTransferRequest) (*BeginTransferResponse, error) {
	// 1. Validate required fields
	tokenID := domain.NormalizeTokenID(req.TokenID)
	if tokenID == "" {
		return nil, domain.ErrInvalidRequest.WithDetails("token_id must be a hex card uid")
	}
	if req.UserID == "" {
		return nil, domain.ErrInvalidRequest.WithDetails("user_id is required")
	}

	// 2. Acquire the lease under optimistic locking
	var (
		tok  *domain.Token
		sess *domain.TransferSession
	)
	for attempt := 0; ; attempt++ {
		var err error
		tok, err = s.tokens.Get(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if tok.Status != domain.TokenStatusActive {
			return nil, domain.ErrInvalidState.WithDetails("token is " + string(tok.Status))
		}
		if tok.IsLocked() {
			if tok.Lock.UserID != req.UserID {
				return nil, domain.ErrTokenLocked.WithDetails("held until " +
					time.UnixMilli(tok.Lock.ExpiresAt).UTC().Format(time.RFC3339))
			}
			// Same user retrying: supersede the stale attempt and
			// take the lease over.
			s.supersede(ctx, tok.Lock.SessionID)
			tok.Release(tok.Lock.SessionID)
		}

		sess, err = domain.NewTransferSession(tok.ID, req.UserID, tok.KeyVersion, s.cfg.SessionTTL)
		if err != nil {
			return nil, err
		}
		if err := s.sessions.Create(ctx, sess); err != nil {
			return nil, err
		}
		if err := tok.Acquire(&domain.Lock{
			LeaseID:   sess.LeaseID,
			SessionID: sess.ID,
			UserID:    req.UserID,
			ExpiresAt: sess.ExpiresAt,
		}); err != nil {
			_ = s.sessions.Delete(ctx, sess.ID)
			return nil, err
		}
		err = s.tokens.Update(ctx, tok, tok.Version)
		if err == nil {
			break
		}
		_ = s.sessions.Delete(ctx, sess.ID)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < casRetries {
			continue
		}
		return nil, err
	}

	// 3. Build the first authentication command
	cardKey, err := s.keys.CardKey(ctx, tok.ID, tok.KeyVersion)
	if err != nil {
		s.abortBegin(ctx, sess)
		return nil, err
	}
	auth := protocol.NewAuthenticator(s.suites.ForKeyVersion(tok.KeyVersion), cardKey, s.cfg.KeySlot)
	first, err := auth.FirstCommand()
	if err != nil {
		s.abortBegin(ctx, sess)
		return nil, err
	}
	sess.Scratch.AuthState = string(auth.State())

	// 4. Open the durable transfer record
	rec, err := domain.NewTransferRecord(sess.ID, tok.ID, tok.OwnerID, req.UserID, tok.KeyVersion)
	if err != nil {
		s.abortBegin(ctx, sess)
		return nil, err
	}
	if err := s.records.Create(ctx, rec); err != nil {
		s.abortBegin(ctx, sess)
		return nil, err
	}
	sess.RecordID = rec.ID
	if err := s.sessions.Update(ctx, sess, sess.Version); err != nil {
		s.abortBegin(ctx, sess)
		return nil, err
	}

	// 5. Audit
	s.auditEvent(ctx, domain.AuditTransferBegin, tok.ID, func(e *domain.AuditLogEntry) {
		e.SessionID = sess.ID
		e.UserID = req.UserID
		e.FromOwner = tok.OwnerID
		e.ToOwner = req.UserID
		e.KeyVersion = tok.KeyVersion
	})

	s.logger.Info("transfer session opened",
		"session_id", sess.ID,
		"token_id", tok.ID,
		"user_id", req.UserID,
		"key_version", tok.KeyVersion,
	)

	return &BeginTransferResponse{
		SessionID: sess.ID,
		LeaseID:   sess.LeaseID,
		RecordID:  rec.ID,
		ExpiresAt: sess.ExpiresAt,
		Commands:  []string{apdu.Encode(first)},
	}, nil
}

// abortBegin rolls back a half-opened transfer: lease released, session
// removed. Called only before the Begin response is returned.
func (s *TransferService) abortBegin(ctx context.Context, sess *domain.TransferSession) {
	s.releaseLease(ctx, sess)
	_ = s.sessions.Delete(ctx, sess.ID)
}

// ============================================================================
// ContinueAuth Operation
// ============================================================================

// ContinueAuthRequest carries one card response into the handshake.
type ContinueAuthRequest struct {
	SessionID      string // Required
	UserID         string // Required: the authenticated caller
	CardResponse   string // Required: base64 card response frame
	IdempotencyKey string // Optional
}

// ContinueAuthResponse contains the next relay step.
type ContinueAuthResponse struct {
	Done     bool     `json:"done"`
	Phase    string   `json:"phase"`
	Commands []string `json:"commands,omitempty"` // next card commands, empty once done
}

// ContinueAuth advances the mutual authentication handshake with one
// card response. While the handshake is in flight, the response carries
// the next command to relay; once the card's proof verifies, the
// session enters the auth-ok phase and holds a session key.
//
// A verification failure is terminal: the session fails, the lease is
// released, and the transfer record settles as failed. A malformed
// frame leaves the session untouched.
func (s *TransferService) ContinueAuth(ctx context.Context, req *ContinueAuthRequest) (*ContinueAuthResponse, error) {
	// 1. Load and gate the session
	sess, err := s.loadSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	var resp ContinueAuthResponse
	if ok, err := replayInto(sess, req.IdempotencyKey, &resp); err != nil {
		return nil, err
	} else if ok {
		return &resp, nil
	}
	if err := s.gatePending(sess); err != nil {
		return nil, err
	}
	if sess.Phase != domain.PhaseAuth {
		return nil, domain.ErrInvalidPhase.WithDetails("authentication already complete")
	}

	// 2. Decode the card response
	frame, err := apdu.Decode(req.CardResponse)
	if err != nil {
		return nil, domain.ErrMalformedInput.WithCause(err)
	}

	// 3. Resume the handshake from scratch state
	cardKey, err := s.keys.CardKey(ctx, sess.TokenID, sess.KeyVersion)
	if err != nil {
		return nil, err
	}
	auth := protocol.Resume(
		s.suites.ForKeyVersion(sess.KeyVersion),
		cardKey,
		s.cfg.KeySlot,
		protocol.AuthState(sess.Scratch.AuthState),
		sess.Scratch.RndA,
		sess.Scratch.RndB,
	)
	next, done, err := auth.HandleResponse(frame)
	if err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			s.failTransfer(ctx, sess, domain.GetErrorCode(err))
		}
		return nil, err
	}

	// 4. Persist the advanced handshake state
	ver := sess.Version
	sess.Scratch.AuthState = string(auth.State())
	sess.Scratch.RndA = auth.RndA()
	sess.Scratch.RndB = auth.RndB()
	if done {
		sess.Phase = domain.PhaseAuthOK
		sess.Scratch.SessionKey = auth.SessionKey()
	}

	resp = ContinueAuthResponse{
		Done:  done,
		Phase: string(sess.Phase),
	}
	if !done {
		resp.Commands = []string{apdu.Encode(next)}
	}
	remember(sess, req.IdempotencyKey, &resp)
	if err := s.sessions.Update(ctx, sess, ver); err != nil {
		return nil, err
	}

	if done {
		s.logger.Info("card authenticated",
			"session_id", sess.ID,
			"token_id", sess.TokenID,
			"suite", s.suites.ForKeyVersion(sess.KeyVersion).Name(),
		)
	}
	return &resp, nil
}

// ============================================================================
// Shared session plumbing
// ============================================================================

// loadSession fetches a session and checks the caller owns it.
func (s *TransferService) loadSession(ctx context.Context, sessionID, userID string) (*domain.TransferSession, error) {
	if sessionID == "" {
		return nil, domain.ErrInvalidRequest.WithDetails("session_id is required")
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if userID == "" || sess.UserID != userID {
		return nil, domain.ErrUnauthorized.WithDetails("session belongs to a different user")
	}
	return sess, nil
}

// gatePending rejects calls against terminal or expired sessions.
// Expiry is detected passively here; the sweeper settles the session.
func (s *TransferService) gatePending(sess *domain.TransferSession) error {
	if sess.IsTerminal() {
		if sess.State == domain.SessionFailed && sess.FailureCode != "" {
			return domain.ErrInvalidState.WithDetails("session failed: " + sess.FailureCode)
		}
		return domain.ErrInvalidState.WithDetails("session is " + string(sess.State))
	}
	if sess.IsExpired() {
		return domain.ErrSessionExpired
	}
	return nil
}

// failTransfer settles a session as failed: lease released, record
// settled, audit written. Best-effort on the secondary writes.
func (s *TransferService) failTransfer(ctx context.Context, sess *domain.TransferSession, code string) {
	ver := sess.Version
	sess.Fail(code)
	if err := s.sessions.Update(ctx, sess, ver); err != nil {
		s.logger.Warn("failed session not persisted", "session_id", sess.ID, "error", err)
	}
	s.releaseLease(ctx, sess)
	s.settleRecord(ctx, sess.ID, domain.RecordFailed, code)

	event := domain.AuditTransferFailed
	if code == domain.GetErrorCode(domain.ErrSessionExpired) {
		event = domain.AuditSessionExpired
	}
	s.auditEvent(ctx, event, sess.TokenID, func(e *domain.AuditLogEntry) {
		e.SessionID = sess.ID
		e.UserID = sess.UserID
		e.Detail = code
	})

	s.logger.Warn("transfer failed",
		"session_id", sess.ID,
		"token_id", sess.TokenID,
		"code", code,
	)
}

// releaseLease drops the token lock held by sess, if still held.
func (s *TransferService) releaseLease(ctx context.Context, sess *domain.TransferSession) {
	for attempt := 0; attempt <= casRetries; attempt++ {
		tok, err := s.tokens.Get(ctx, sess.TokenID)
		if err != nil {
			s.logger.Warn("lease release: token load failed", "token_id", sess.TokenID, "error", err)
			return
		}
		if tok.Lock == nil || tok.Lock.SessionID != sess.ID {
			return
		}
		ver := tok.Version
		tok.Release(sess.ID)
		err = s.tokens.Update(ctx, tok, ver)
		if err == nil {
			return
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Warn("lease release failed", "token_id", sess.TokenID, "error", err)
			return
		}
	}
}

// settleRecord moves the session's pending record to a final status.
func (s *TransferService) settleRecord(ctx context.Context, sessionID string, status domain.RecordStatus, failureCode string) {
	rec, err := s.records.GetBySession(ctx, sessionID)
	if err != nil || !rec.IsPending() {
		return
	}
	ver := rec.Version
	rec.Settle(status, failureCode)
	if err := s.records.Update(ctx, rec, ver); err != nil {
		s.logger.Warn("record settle failed", "record_id", rec.ID, "error", err)
	}
}

// supersede fails a stale session whose lease is being taken over.
func (s *TransferService) supersede(ctx context.Context, sessionID string) {
	old, err := s.sessions.Get(ctx, sessionID)
	if err != nil || old.IsTerminal() {
		return
	}
	ver := old.Version
	old.Fail(failureSuperseded)
	if err := s.sessions.Update(ctx, old, ver); err != nil {
		s.logger.Warn("supersede: session update failed", "session_id", sessionID, "error", err)
	}
	s.settleRecord(ctx, sessionID, domain.RecordSuperseded, failureSuperseded)
}

// failureSuperseded marks sessions displaced by a lease takeover.
const failureSuperseded = "SUPERSEDED"

// auditEvent appends one audit entry, logging instead of failing the
// caller when the append cannot be written.
func (s *TransferService) auditEvent(ctx context.Context, event domain.AuditEvent, tokenID string, fill func(*domain.AuditLogEntry)) {
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

// replayInto checks the idempotency cache and decodes a stored result.
func replayInto(sess *domain.TransferSession, key string, out any) (bool, error) {
	if key == "" {
		return false, nil
	}
	if len(key) > domain.MaxIdempotencyKeyLength {
		return false, domain.ErrInvalidRequest.WithDetails("idempotency key too long")
	}
	raw, ok := sess.ReplayResult(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, domain.ErrInternalServer.WithCause(err)
	}
	return true, nil
}

// remember stores a result in the session's idempotency cache. The
// caller persists the session afterwards.
func remember(sess *domain.TransferSession, key string, result any) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	sess.RememberResult(key, raw)
}
