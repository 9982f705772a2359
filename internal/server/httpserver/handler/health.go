// Package handler provides HTTP request handlers for DotVault.
package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready.
//
// Readiness includes a storage probe when an engine is attached.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.engine != nil {
		if _, err := h.engine.Stats(r.Context()); err != nil {
			h.writeError(w, r, http.StatusServiceUnavailable, "STORAGE_ERROR", "storage not ready", nil)
			return
		}
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
