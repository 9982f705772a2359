package service

import (
	"context"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/protocol"
	"github.com/swapdotz/dotvault/pkg/apdu"
	"github.com/swapdotz/dotvault/pkg/token"
)

// RotationTarget labels which key a rotation installs. The protocol is
// identical for both; the label records intent in the response.
type RotationTarget string

const (
	// TargetMid is the intermediate key installed before finalization.
	TargetMid RotationTarget = "mid"

	// TargetNew is the receiving owner's key.
	TargetNew RotationTarget = "new"
)

// ============================================================================
// RotateKey Operation
// ============================================================================

// RotateKeyRequest asks for the encrypted key change frames.
type RotateKeyRequest struct {
	SessionID      string // Required
	UserID         string // Required: the authenticated caller
	Target         string // Required: "mid" or "new"
	IdempotencyKey string // Optional
}

// RotateKeyResponse carries the frames to relay and the one-time
// verify token for confirming the card's answer.
type RotateKeyResponse struct {
	Target      string   `json:"target"`
	KeyVersion  uint32   `json:"key_version"` // generation being installed
	Commands    []string `json:"commands"`    // base64 frames, in relay order
	VerifyToken string   `json:"verify_token"`
	FramesHash  string   `json:"frames_hash"`
}

// RotateKey builds the encrypted change-key command frames that move
// the card to the next key generation. Valid only in the auth-ok
// phase. The new key never leaves the server: the relay sees only
// ciphertext under the session key.
//
// Each call supersedes any earlier unconfirmed rotation in this
// session and issues a fresh single-use verify token bound to the
// exact frames returned.
func (s *TransferService) RotateKey(ctx context.Context, req *RotateKeyRequest) (*RotateKeyResponse, error) {
	// 1. Load and gate the session
	sess, err := s.loadSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	var resp RotateKeyResponse
	if ok, err := replayInto(sess, req.IdempotencyKey, &resp); err != nil {
		return nil, err
	} else if ok {
		return &resp, nil
	}
	if err := s.gatePending(sess); err != nil {
		return nil, err
	}
	if sess.Phase != domain.PhaseAuthOK {
		return nil, domain.ErrInvalidPhase.WithDetails("key rotation requires a completed authentication")
	}
	switch RotationTarget(req.Target) {
	case TargetMid, TargetNew:
	default:
		return nil, domain.ErrInvalidRequest.WithDetails(`target must be "mid" or "new"`)
	}

	// 2. Derive the next-generation key and build the frames
	gen := sess.KeyVersion + 1
	newKey := s.keys.Derive(sess.TokenID, gen)
	frames, err := protocol.BuildKeyChange(
		s.suites.ForKeyVersion(sess.KeyVersion),
		sess.Scratch.SessionKey,
		newKey,
		byte(gen),
		s.cfg.KeySlot,
		s.cfg.MaxFrameData,
	)
	if err != nil {
		return nil, err
	}

	// 3. Issue the verify token, bound to these frames
	verify, err := token.GenerateWithPrefix(token.PrefixVerify)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	ver := sess.Version
	sess.Scratch.PendingKey = newKey
	sess.Scratch.PendingKeyVersion = gen
	sess.Scratch.VerifyTokenHash = token.Hash(verify)
	sess.Scratch.FramesHash = protocol.FramesHash(frames)

	resp = RotateKeyResponse{
		Target:      req.Target,
		KeyVersion:  gen,
		Commands:    apdu.EncodeAll(frames),
		VerifyToken: verify,
		FramesHash:  sess.Scratch.FramesHash,
	}
	remember(sess, req.IdempotencyKey, &resp)
	if err := s.sessions.Update(ctx, sess, ver); err != nil {
		return nil, err
	}

	s.logger.Info("key rotation issued",
		"session_id", sess.ID,
		"token_id", sess.TokenID,
		"target", req.Target,
		"key_version", gen,
		"frames", len(frames),
	)
	return &resp, nil
}

// ============================================================================
// ConfirmRotation Operation
// ============================================================================

// ConfirmRotationRequest settles an issued rotation with the card's
// final answer.
type ConfirmRotationRequest struct {
	SessionID      string   // Required
	UserID         string   // Required: the authenticated caller
	VerifyToken    string   // Required: the token issued by RotateKey
	FramesHash     string   // Required: the frames hash issued by RotateKey
	CardResponses  []string // Required: base64 card responses, in relay order
	IdempotencyKey string   // Optional
}

// ConfirmRotationResponse reports the session's new phase.
type ConfirmRotationResponse struct {
	Phase      string `json:"phase"`
	KeyVersion uint32 `json:"key_version"` // generation now live on the card
}

// ConfirmRotation consumes the verify token and inspects the card's
// final status word. The caller submits every response collected while
// relaying the frames; only the last one carries the verdict. On
// acceptance the pending key is live on the card and the session
// enters the mid-ok phase; the registry's key version moves only at
// Finalize.
//
// A rejecting status word consumes the rotation attempt but leaves the
// phase at auth-ok, so the rotation can be rebuilt from scratch with a
// fresh verify token. A consumed or unknown verify token is rejected
// without touching the session.
func (s *TransferService) ConfirmRotation(ctx context.Context, req *ConfirmRotationRequest) (*ConfirmRotationResponse, error) {
	// 1. Load and gate the session
	sess, err := s.loadSession(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	var resp ConfirmRotationResponse
	if ok, err := replayInto(sess, req.IdempotencyKey, &resp); err != nil {
		return nil, err
	} else if ok {
		return &resp, nil
	}
	if err := s.gatePending(sess); err != nil {
		return nil, err
	}
	if sess.Phase == domain.PhaseMidOK {
		return nil, domain.ErrInvalidState.WithDetails("verify token already consumed")
	}
	if sess.Phase != domain.PhaseAuthOK || sess.Scratch.PendingKey == nil {
		return nil, domain.ErrInvalidPhase.WithDetails("no rotation in flight")
	}

	// 2. Check the verify token: single-use, bound to this session
	if sess.Scratch.VerifyTokenHash == "" ||
		!token.Verify(req.VerifyToken, sess.Scratch.VerifyTokenHash) {
		return nil, domain.ErrInvalidState.WithDetails("verify token unknown or already consumed")
	}
	if req.FramesHash != sess.Scratch.FramesHash {
		return nil, domain.ErrInvalidState.WithDetails("frames hash does not match the issued rotation")
	}

	// 3. Decode and inspect the card's final answer
	if len(req.CardResponses) == 0 {
		return nil, domain.ErrInvalidRequest.WithDetails("at least one card response is required")
	}
	frame, err := apdu.Decode(req.CardResponses[len(req.CardResponses)-1])
	if err != nil {
		return nil, domain.ErrMalformedInput.WithCause(err)
	}
	if err := protocol.ConfirmKeyChange(frame); err != nil {
		if !domain.IsDomainError(err, domain.GetErrorCode(domain.ErrKeyChangeFailed)) {
			return nil, err
		}
		// Card rejected the change: consume this attempt, keep the
		// phase so the rotation can be rebuilt.
		ver := sess.Version
		sess.Scratch.PendingKey = nil
		sess.Scratch.PendingKeyVersion = 0
		sess.Scratch.VerifyTokenHash = ""
		sess.Scratch.FramesHash = ""
		if uerr := s.sessions.Update(ctx, sess, ver); uerr != nil {
			return nil, uerr
		}
		s.logger.Warn("key rotation rejected by card",
			"session_id", sess.ID,
			"token_id", sess.TokenID,
		)
		return nil, err
	}

	// 4. Promote: pending key is live on the card
	ver := sess.Version
	sess.Phase = domain.PhaseMidOK
	sess.Scratch.VerifyTokenHash = ""
	sess.Scratch.FramesHash = ""

	resp = ConfirmRotationResponse{
		Phase:      string(sess.Phase),
		KeyVersion: sess.Scratch.PendingKeyVersion,
	}
	remember(sess, req.IdempotencyKey, &resp)
	if err := s.sessions.Update(ctx, sess, ver); err != nil {
		return nil, err
	}

	s.logger.Info("key rotation confirmed",
		"session_id", sess.ID,
		"token_id", sess.TokenID,
		"key_version", sess.Scratch.PendingKeyVersion,
	)
	return &resp, nil
}
