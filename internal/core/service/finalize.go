package service

import (
	"context"
	"errors"
	"time"

	"github.com/swapdotz/dotvault/internal/core/domain"
)

// ============================================================================
// Finalize Operation
// ============================================================================

// FinalizeTransferRequest commits the ownership change.
type FinalizeTransferRequest struct {
	SessionID      string // Required
	UserID         string // Required: the authenticated caller
	NewOwnerID     string // Required: must be the session's user
	IdempotencyKey string // Optional
}

// FinalizeTransferResponse reports the committed ownership state.
type FinalizeTransferResponse struct {
	TokenID       string `json:"token_id"`
	NewOwnerID    string `json:"new_owner_id"`
	KeyVersion    uint32 `json:"key_version"`
	RecordID      string `json:"record_id"`
	TransferCount uint64 `json:"transfer_count"`
	CompletedAt   int64  `json:"completed_at"`
}

// Finalize commits the ownership change. Valid only in the mid-ok
// phase, only by the session's user, and only to that same user.
//
// The commit point is a single compare-and-swap on the token entity:
// ownership, key version, transfer count, and lock release move
// together or not at all. A lease lost to expiry or takeover surfaces
// as INVALID_STATE with nothing applied. Once committed, the session
// completes, the transfer record settles, and any other pending
// records for the token are retired as superseded.
func (s *TransferService) Finalize(ctx context.Context, req *FinalizeTransferRequest) (*FinalizeTransferResponse, error) {
	// 1. Load and gate the session
	sess, err := s.loadSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	var resp FinalizeTransferResponse
	if ok, err := replayInto(sess, req.IdempotencyKey, &resp); err != nil {
		return nil, err
	} else if ok {
		return &resp, nil
	}
	if err := s.gatePending(sess); err != nil {
		return nil, err
	}
	if sess.Phase != domain.PhaseMidOK {
		return nil, domain.ErrInvalidPhase.WithDetails("finalize requires a confirmed key rotation")
	}
	if req.NewOwnerID != sess.UserID {
		return nil, domain.ErrUnauthorized.WithDetails("transfer may only finalize to the session's user")
	}

	// 2. Commit: one compare-and-swap on the token
	tok, err := s.tokens.Get(ctx, sess.TokenID)
	if err != nil {
		return nil, err
	}
	if !tok.LockedBy(sess.ID) {
		return nil, domain.ErrInvalidState.WithDetails("lease no longer held")
	}
	ver := tok.Version
	priorOwner := tok.OwnerID
	tok.TransferTo(sess.UserID, sess.RecordID)
	if err := s.tokens.Update(ctx, tok, ver); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, domain.ErrInvalidState.WithDetails("token changed concurrently, nothing applied")
		}
		return nil, err
	}

	// 3. Settle the session and records
	now := time.Now().UnixMilli()
	resp = FinalizeTransferResponse{
		TokenID:       tok.ID,
		NewOwnerID:    tok.OwnerID,
		KeyVersion:    tok.KeyVersion,
		RecordID:      sess.RecordID,
		TransferCount: tok.TransferCount,
		CompletedAt:   now,
	}

	sver := sess.Version
	sess.Complete()
	remember(sess, req.IdempotencyKey, &resp)
	if err := s.sessions.Update(ctx, sess, sver); err != nil {
		s.logger.Warn("completed session not persisted", "session_id", sess.ID, "error", err)
	}
	s.settleRecord(ctx, sess.ID, domain.RecordCommitted, "")
	s.retireStaleRecords(ctx, tok.ID, sess.RecordID)

	// 4. Audit
	s.auditEvent(ctx, domain.AuditTransferComplete, tok.ID, func(e *domain.AuditLogEntry) {
		e.SessionID = sess.ID
		e.UserID = sess.UserID
		e.FromOwner = priorOwner
		e.ToOwner = tok.OwnerID
		e.KeyVersion = tok.KeyVersion
	})

	s.logger.Info("transfer committed",
		"session_id", sess.ID,
		"token_id", tok.ID,
		"from", priorOwner,
		"to", tok.OwnerID,
		"key_version", tok.KeyVersion,
	)
	return &resp, nil
}

// retireStaleRecords settles any pending records for the token other
// than the committed one as superseded.
func (s *TransferService) retireStaleRecords(ctx context.Context, tokenID, committedID string) {
	recs, err := s.records.ListByToken(ctx, tokenID)
	if err != nil {
		s.logger.Warn("stale record scan failed", "token_id", tokenID, "error", err)
		return
	}
	for _, rec := range recs {
		if rec.ID == committedID || !rec.IsPending() {
			continue
		}
		ver := rec.Version
		rec.Settle(domain.RecordSuperseded, failureSuperseded)
		if err := s.records.Update(ctx, rec, ver); err != nil {
			s.logger.Warn("stale record settle failed", "record_id", rec.ID, "error", err)
		}
	}
}
