// Package handler provides HTTP request handlers for DotVault.
package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/service"
	"github.com/swapdotz/dotvault/internal/infra/buildinfo"
	"github.com/swapdotz/dotvault/internal/storage"
)

// handleAdminStatus handles GET /admin/v1/status/summary.
func (h *Handler) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermSystemStatus) == nil {
		return
	}

	status := map[string]any{
		"status":  "running",
		"version": buildinfo.Get(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	}

	if h.engine != nil {
		if stats, err := h.engine.Stats(r.Context()); err == nil {
			status["storage"] = map[string]any{
				"total_keys": stats.TotalKeys,
				"total_size": stats.TotalSize,
			}
		}
	}

	h.writeJSON(w, r, http.StatusOK, status)
}

// handleSweepTrigger handles POST /admin/v1/sweep/trigger.
func (h *Handler) handleSweepTrigger(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermSweepTrigger) == nil {
		return
	}

	count, err := h.transferSvc.Sweep(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, SweepResponse{
		SweptCount:  count,
		TriggeredAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleAuditLogs handles GET /admin/v1/audit/logs.
func (h *Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermAuditRead) == nil {
		return
	}

	query := r.URL.Query()
	filter := storage.AuditFilter{
		TokenID: query.Get("token_id"),
		Event:   domain.AuditEvent(query.Get("event")),
		AfterID: query.Get("after_id"),
	}
	if limit := query.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	entries, err := h.tokenSvc.AuditTrail(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   len(entries),
	})
}

// handleBackup handles GET /admin/v1/backup. It streams a full
// storage backup in Badger's backup format.
func (h *Handler) handleBackup(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermSystemStatus) == nil {
		return
	}
	if h.engine == nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "STORAGE_ERROR", "storage engine not available", nil)
		return
	}

	rc, err := h.engine.KV().Backup(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="dotvault.backup"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("backup stream interrupted", "error", err)
	}
}

// handleCreateAPIKey handles POST /admin/v1/keys.
func (h *Handler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermAPIKeyCreate) == nil {
		return
	}

	var req CreateAPIKeyRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	resp, err := h.authSvc.CreateAPIKey(r.Context(), &service.CreateAPIKeyRequest{
		Name:        req.Name,
		UserID:      req.UserID,
		Role:        req.Role,
		RateLimit:   req.RateLimit,
		Description: req.Description,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, resp)
}

// handleListAPIKeys handles GET /admin/v1/keys.
func (h *Handler) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermAPIKeyList) == nil {
		return
	}

	keys, err := h.authSvc.ListAPIKeys(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"keys":  keys,
		"total": len(keys),
	})
}

// handleUpdateAPIKeyStatus handles POST /admin/v1/keys/{key_id}/status.
func (h *Handler) handleUpdateAPIKeyStatus(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermAPIKeyDisable) == nil {
		return
	}

	var req UpdateAPIKeyStatusRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !domain.IsValidKeyStatus(req.Status) {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "status must be active or disabled", nil)
		return
	}

	key, err := h.authSvc.UpdateAPIKeyStatus(r.Context(), r.PathValue("key_id"), domain.KeyStatus(req.Status))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, key)
}

// handleRotateAPIKey handles POST /admin/v1/keys/{key_id}/rotate.
func (h *Handler) handleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermAPIKeyCreate) == nil {
		return
	}

	resp, err := h.authSvc.RotateAPIKey(r.Context(), r.PathValue("key_id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleDeleteAPIKey handles DELETE /admin/v1/keys/{key_id}.
func (h *Handler) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	if h.requirePermission(w, r, domain.PermAPIKeyDisable) == nil {
		return
	}

	if err := h.authSvc.DeleteAPIKey(r.Context(), r.PathValue("key_id")); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}
