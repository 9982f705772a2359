// Package handler provides HTTP request handlers for DotVault.
package handler

import (
	"encoding/hex"
	"net/http"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/service"
)

// handleProvisionToken handles POST /v1/tokens.
func (h *Handler) handleProvisionToken(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermTokenProvision) == nil {
		return
	}

	var req ProvisionTokenRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.UID == "" || req.OwnerID == "" {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "uid and owner_id are required", nil)
		return
	}

	var initialKey []byte
	if req.InitialKey != "" {
		raw, err := hex.DecodeString(req.InitialKey)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "initial_key must be hex encoded", nil)
			return
		}
		initialKey = raw
	}

	resp, err := h.tokenSvc.Provision(r.Context(), &service.ProvisionTokenRequest{
		UID:        req.UID,
		OwnerID:    req.OwnerID,
		Metadata:   req.Metadata,
		InitialKey: initialKey,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, resp.Token)
}

// handleGetToken handles GET /v1/tokens/{id}.
func (h *Handler) handleGetToken(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermTokenRead) == nil {
		return
	}

	tok, err := h.tokenSvc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, tok)
}

// handleListTokens handles GET /v1/tokens.
func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermTokenRead) == nil {
		return
	}

	tokens, err := h.tokenSvc.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"tokens": tokens,
		"total":  len(tokens),
	})
}

// handleTokenHistory handles GET /v1/tokens/{id}/history.
func (h *Handler) handleTokenHistory(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermTokenRead) == nil {
		return
	}

	records, err := h.tokenSvc.History(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"records": records,
		"total":   len(records),
	})
}

// handleRetireToken handles POST /v1/tokens/{id}/retire.
func (h *Handler) handleRetireToken(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermTokenProvision) == nil {
		return
	}

	tok, err := h.tokenSvc.Retire(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, tok)
}
