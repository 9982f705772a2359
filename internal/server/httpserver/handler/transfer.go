// Package handler provides HTTP request handlers for DotVault.
package handler

import (
	"net/http"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/service"
)

// handleBeginTransfer handles POST /v1/transfers.
//
// The authenticated key's user becomes the receiving party of the
// transfer. There is no way to open a transfer on someone's behalf.
func (h *Handler) handleBeginTransfer(w http.ResponseWriter, r *http.Request) {
	key := h.requirePermission(w, r, domain.PermTransferExecute)
	if key == nil {
		return
	}

	var req BeginTransferRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.TokenID == "" {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "token_id is required", nil)
		return
	}

	resp, err := h.transferSvc.Begin(r.Context(), &service.BeginTransferRequest{
		TokenID: req.TokenID,
		UserID:  key.UserID,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, resp)
}

// handleContinueAuth handles POST /v1/transfers/{id}/continue-auth.
func (h *Handler) handleContinueAuth(w http.ResponseWriter, r *http.Request) {
	key := h.requirePermission(w, r, domain.PermTransferExecute)
	if key == nil {
		return
	}

	var req ContinueAuthRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.CardResponse == "" {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "card_response is required", nil)
		return
	}

	resp, err := h.transferSvc.ContinueAuth(r.Context(), &service.ContinueAuthRequest{
		SessionID:      r.PathValue("id"),
		UserID:         key.UserID,
		CardResponse:   req.CardResponse,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleRotateKey handles POST /v1/transfers/{id}/rotate.
func (h *Handler) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	key := h.requirePermission(w, r, domain.PermTransferExecute)
	if key == nil {
		return
	}

	var req RotateKeyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.transferSvc.RotateKey(r.Context(), &service.RotateKeyRequest{
		SessionID:      r.PathValue("id"),
		UserID:         key.UserID,
		Target:         req.Target,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleConfirmRotation handles POST /v1/transfers/{id}/confirm.
func (h *Handler) handleConfirmRotation(w http.ResponseWriter, r *http.Request) {
	key := h.requirePermission(w, r, domain.PermTransferExecute)
	if key == nil {
		return
	}

	var req ConfirmRotationRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.VerifyToken == "" || len(req.CardResponses) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "verify_token and responses are required", nil)
		return
	}

	resp, err := h.transferSvc.ConfirmRotation(r.Context(), &service.ConfirmRotationRequest{
		SessionID:      r.PathValue("id"),
		UserID:         key.UserID,
		VerifyToken:    req.VerifyToken,
		FramesHash:     req.FramesHash,
		CardResponses:  req.CardResponses,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleFinalizeTransfer handles POST /v1/transfers/{id}/finalize.
func (h *Handler) handleFinalizeTransfer(w http.ResponseWriter, r *http.Request) {
	key := h.requirePermission(w, r, domain.PermTransferExecute)
	if key == nil {
		return
	}

	var req FinalizeTransferRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.NewOwnerID == "" {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "new_owner_id is required", nil)
		return
	}

	resp, err := h.transferSvc.Finalize(r.Context(), &service.FinalizeTransferRequest{
		SessionID:      r.PathValue("id"),
		UserID:         key.UserID,
		NewOwnerID:     req.NewOwnerID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}
