// Package httpserver provides the HTTP/HTTPS server for DotVault.
//
// This package implements the primary external API using stdlib net/http:
//
//   - Transfer endpoints: /v1/transfers, /v1/transfers/{id}/*
//   - Token endpoints: /v1/tokens, /v1/tokens/{id}/*
//   - Admin endpoints: /admin/v1/*
//   - Health endpoints: /health, /ready, /metrics
//
// Features:
//
//   - TLS support
//   - Middleware chain: Auth, RateLimit, Audit, RequestID, Metrics
//   - Graceful shutdown with configurable timeout
//   - Prometheus metrics integration
package httpserver
