// Package handler provides HTTP request handlers for DotVault.
//
// This package contains handlers for all HTTP endpoints:
//
//   - transfer.go: Transfer session lifecycle (begin, relay, finalize)
//   - token.go: Token registry operations
//   - admin.go: API key management, audit logs, maintenance
//   - health.go: Health and readiness checks
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Check caller permission
//   - Call domain service
//   - Format and return response
//   - Handle errors with appropriate HTTP status codes
package handler
