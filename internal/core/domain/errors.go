// Package domain defines the core domain models for DotVault.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured code.
// Codes are the protocol error kinds surfaced to API callers; transports
// map them onto their own status vocabulary.
type DomainError struct {
	Code    string // Error kind (e.g., "SESSION_EXPIRED")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Transfer protocol errors
// ============================================================================

var (
	// ErrSessionNotFound indicates the requested transfer session was not found.
	ErrSessionNotFound = NewDomainError("SESSION_NOT_FOUND", "transfer session not found")

	// ErrSessionExpired indicates the session's lease expired mid-transfer.
	ErrSessionExpired = NewDomainError("SESSION_EXPIRED", "transfer session expired")

	// ErrTokenNotFound indicates the physical token is not registered.
	ErrTokenNotFound = NewDomainError("TOKEN_NOT_FOUND", "token not found")

	// ErrTokenLocked indicates another transfer currently holds the token.
	ErrTokenLocked = NewDomainError("TOKEN_LOCKED", "token locked by another transfer")

	// ErrAuthFailed indicates card authentication failed. Not resumable.
	ErrAuthFailed = NewDomainError("AUTH_FAILED", "card authentication failed")

	// ErrKeyChangeFailed indicates the card rejected the key change command.
	ErrKeyChangeFailed = NewDomainError("KEY_CHANGE_FAILED", "key change rejected by card")

	// ErrInvalidPhase indicates a protocol step was attempted out of order.
	ErrInvalidPhase = NewDomainError("INVALID_PHASE", "operation not valid in current protocol phase")

	// ErrInvalidState indicates the session is in a terminal or wrong state.
	ErrInvalidState = NewDomainError("INVALID_STATE", "operation not valid in current session state")

	// ErrMalformedInput indicates an undecodable frame or bad field encoding.
	ErrMalformedInput = NewDomainError("MALFORMED_INPUT", "malformed input")

	// ErrInvalidRequest indicates a request that fails field validation.
	ErrInvalidRequest = NewDomainError("INVALID_REQUEST", "invalid request")

	// ErrUnauthorized indicates the caller may not act on this resource.
	ErrUnauthorized = NewDomainError("UNAUTHORIZED", "caller not authorized")
)

// ============================================================================
// Caller authentication errors
// ============================================================================

var (
	// ErrAPIKeyMissing indicates no API key was provided.
	ErrAPIKeyMissing = NewDomainError("UNAUTHORIZED", "api key not provided")

	// ErrAPIKeyInvalid indicates the API key is invalid or does not exist.
	ErrAPIKeyInvalid = NewDomainError("UNAUTHORIZED", "invalid api key")

	// ErrAPIKeyDisabled indicates the API key has been disabled.
	ErrAPIKeyDisabled = NewDomainError("UNAUTHORIZED", "api key disabled")

	// ErrAPIKeyNotFound indicates the API key was not found.
	ErrAPIKeyNotFound = NewDomainError("UNAUTHORIZED", "api key not found")

	// ErrAPIKeyConflict indicates the API key ID already exists.
	ErrAPIKeyConflict = NewDomainError("INVALID_REQUEST", "api key id conflict")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = NewDomainError("UNAUTHORIZED", "permission denied")
)

// ============================================================================
// System errors
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("INTERNAL", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("STORAGE_ERROR", "storage error")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("RATE_LIMITED", "too many requests")

	// ErrVersionConflict indicates an optimistic lock conflict. Retried
	// internally; callers see it only after retries are exhausted.
	ErrVersionConflict = NewDomainError("VERSION_CONFLICT", "version conflict, please retry")
)
