// Package handler provides HTTP request handlers for DotVault.
//
// This package implements the HTTP API endpoints for transfer
// sessions, token registry operations, and administration.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/service"
	"github.com/swapdotz/dotvault/internal/storage"
	"github.com/swapdotz/dotvault/internal/telemetry/logger"
)

// Config holds the services a Handler dispatches to.
type Config struct {
	Transfer *service.TransferService
	Tokens   *service.TokenService
	Auth     *service.AuthService

	// Engine backs the admin status and backup endpoints. Optional;
	// when nil those endpoints report storage as unavailable.
	Engine *storage.Engine

	Logger *slog.Logger
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	transferSvc *service.TransferService
	tokenSvc    *service.TokenService
	authSvc     *service.AuthService
	engine      *storage.Engine
	logger      *slog.Logger
	mux         *http.ServeMux
}

// New creates a new Handler with the given services.
func New(cfg *Config) *Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	h := &Handler{
		transferSvc: cfg.Transfer,
		tokenSvc:    cfg.Tokens,
		authSvc:     cfg.Auth,
		engine:      cfg.Engine,
		logger:      log,
		mux:         http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints (no auth required)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Transfer endpoints
	h.mux.HandleFunc("POST /v1/transfers", h.handleBeginTransfer)
	h.mux.HandleFunc("POST /v1/transfers/{id}/continue-auth", h.handleContinueAuth)
	h.mux.HandleFunc("POST /v1/transfers/{id}/rotate", h.handleRotateKey)
	h.mux.HandleFunc("POST /v1/transfers/{id}/confirm", h.handleConfirmRotation)
	h.mux.HandleFunc("POST /v1/transfers/{id}/finalize", h.handleFinalizeTransfer)

	// Token registry endpoints
	h.mux.HandleFunc("POST /v1/tokens", h.handleProvisionToken)
	h.mux.HandleFunc("GET /v1/tokens", h.handleListTokens)
	h.mux.HandleFunc("GET /v1/tokens/{id}", h.handleGetToken)
	h.mux.HandleFunc("GET /v1/tokens/{id}/history", h.handleTokenHistory)
	h.mux.HandleFunc("POST /v1/tokens/{id}/retire", h.handleRetireToken)

	// Admin endpoints
	h.mux.HandleFunc("GET /admin/v1/status/summary", h.handleAdminStatus)
	h.mux.HandleFunc("POST /admin/v1/sweep/trigger", h.handleSweepTrigger)
	h.mux.HandleFunc("GET /admin/v1/audit/logs", h.handleAuditLogs)
	h.mux.HandleFunc("GET /admin/v1/backup", h.handleBackup)

	// API Key management endpoints
	h.mux.HandleFunc("POST /admin/v1/keys", h.handleCreateAPIKey)
	h.mux.HandleFunc("GET /admin/v1/keys", h.handleListAPIKeys)
	h.mux.HandleFunc("POST /admin/v1/keys/{key_id}/status", h.handleUpdateAPIKeyStatus)
	h.mux.HandleFunc("POST /admin/v1/keys/{key_id}/rotate", h.handleRotateAPIKey)
	h.mux.HandleFunc("DELETE /admin/v1/keys/{key_id}", h.handleDeleteAPIKey)
}

// Context key for the authenticated API key, set by the auth middleware.
type contextKey string

const apiKeyContextKey contextKey = "dotvault.api_key"

// WithAPIKey stores the authenticated API key in the context.
func WithAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// APIKeyFrom retrieves the authenticated API key from the context.
func APIKeyFrom(ctx context.Context) *domain.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*domain.APIKey); ok {
		return key
	}
	return nil
}

// caller returns the authenticated API key, writing a 401 when absent.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) *domain.APIKey {
	key := APIKeyFrom(r.Context())
	if key == nil {
		h.writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	}
	return key
}

// requirePermission checks the caller's permission, writing a 403 on
// denial. Returns the caller's key when the check passes.
func (h *Handler) requirePermission(w http.ResponseWriter, r *http.Request, perm domain.Permission) *domain.APIKey {
	key := h.caller(w, r)
	if key == nil {
		return nil
	}
	if err := h.authSvc.CheckPermission(key, perm); err != nil {
		h.writeError(w, r, http.StatusForbidden, "UNAUTHORIZED", "permission denied: "+string(perm), nil)
		return nil
	}
	return key
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		var details any
		if derr.Details != "" {
			details = derr.Details
		}
		h.writeError(w, r, errorCodeToHTTPStatus(derr.Code), derr.Code, derr.Error(), details)
		return
	}

	h.logger.Error("internal error",
		"request_id", logger.RequestIDFromContext(r.Context()),
		"error", err,
	)
	h.writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

// errorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch code {
	case "TOKEN_NOT_FOUND", "SESSION_NOT_FOUND":
		return http.StatusNotFound
	case "TOKEN_LOCKED", "INVALID_PHASE", "INVALID_STATE":
		return http.StatusConflict
	case "SESSION_EXPIRED":
		return http.StatusGone
	case "AUTH_FAILED", "KEY_CHANGE_FAILED":
		return http.StatusUnprocessableEntity
	case "INVALID_REQUEST", "MALFORMED_INPUT":
		return http.StatusBadRequest
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "RATE_LIMITED":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", nil)
		return false
	}
	return true
}
