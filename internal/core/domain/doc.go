// Package domain defines the core domain models for DotVault.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Token: registered physical token with ownership and lock state
//   - TransferSession: in-memory transfer attempt with protocol scratch
//   - TransferRecord: durable trace of a transfer attempt
//   - AuditLogEntry: append-only audit record
//   - APIKey: caller credential bound to a user
//   - Errors: domain error catalogue keyed by protocol error kind
//
// All persisted models implement validation, serialization, and
// version control for optimistic locking. Session scratch (challenges,
// session keys, pending card keys) is deliberately excluded from
// serialization and never leaves process memory.
package domain
