// Package handler provides HTTP request handlers for DotVault.
package handler

import (
	"time"

	"github.com/swapdotz/dotvault/internal/core/domain"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// BeginTransferRequest is the request body for POST /v1/transfers.
type BeginTransferRequest struct {
	TokenID string `json:"token_id"`
}

// ContinueAuthRequest is the request body for
// POST /v1/transfers/{id}/continue-auth.
type ContinueAuthRequest struct {
	CardResponse   string `json:"card_response"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RotateKeyRequest is the request body for POST /v1/transfers/{id}/rotate.
type RotateKeyRequest struct {
	Target         string `json:"target"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ConfirmRotationRequest is the request body for
// POST /v1/transfers/{id}/confirm.
type ConfirmRotationRequest struct {
	VerifyToken    string   `json:"verify_token"`
	FramesHash     string   `json:"frames_hash"`
	CardResponses  []string `json:"responses"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

// FinalizeTransferRequest is the request body for
// POST /v1/transfers/{id}/finalize.
type FinalizeTransferRequest struct {
	NewOwnerID     string `json:"new_owner_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ProvisionTokenRequest is the request body for POST /v1/tokens.
type ProvisionTokenRequest struct {
	UID      string          `json:"uid"`
	OwnerID  string          `json:"owner_id"`
	Metadata domain.Metadata `json:"metadata,omitempty"`

	// InitialKey is the hex-encoded factory key, optional.
	InitialKey string `json:"initial_key,omitempty"`
}

// CreateAPIKeyRequest is the request body for POST /admin/v1/keys.
type CreateAPIKeyRequest struct {
	Name        string `json:"name"`
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	RateLimit   int    `json:"rate_limit,omitempty"`
	Description string `json:"description,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

// UpdateAPIKeyStatusRequest is the request body for
// POST /admin/v1/keys/{key_id}/status.
type UpdateAPIKeyStatusRequest struct {
	Status string `json:"status"`
}

// SweepResponse is the response body for POST /admin/v1/sweep/trigger.
type SweepResponse struct {
	SweptCount  int    `json:"swept_count"`
	TriggeredAt string `json:"triggered_at"`
}
