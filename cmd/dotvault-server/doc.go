// Package main provides the entry point for dotvault-server.
//
// The server is the core DotVault service that provides:
//
//   - HTTP/HTTPS API for token provisioning and ownership transfers
//   - The card command relay for mutual authentication and key rotation
//   - Durable token, transfer record, and audit log storage
//   - API key authentication with per-key rate limits
//   - Prometheus metrics
//
// Usage:
//
//	dotvault-server [flags]
//	dotvault-server --config /path/to/config.yaml
//
// The server loads configuration, initializes infrastructure
// components, and starts the HTTP listener.
package main
