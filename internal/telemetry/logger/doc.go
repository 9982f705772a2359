// Package logger provides structured logging for DotVault.
//
// It configures log/slog JSON or text handlers with automatic
// redaction of secret material:
//
//   - logger.go: Handler configuration and dynamic level control
//   - context.go: Context-aware logging with request IDs
//   - redact.go: Sensitive data redaction
//
// Verify tokens (dvvt_) and API key secrets (dvak_) are masked in
// every log line, whatever the attribute key.
package logger
