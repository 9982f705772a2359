// Package storage provides the durable storage engine for DotVault.
//
// Durable state lives in an embedded Badger KV store behind the
// KVEngine interface. Entity stores (tokens, transfer records, audit
// log, API keys) marshal domain types as JSON into prefixed key
// namespaces and rely on Badger transactions for atomic multi-key
// writes and optimistic locking.
//
// Transfer sessions are not stored here. They are short-lived, carry
// secret scratch material that must never touch disk, and live in the
// in-memory store under internal/storage/memory.
package storage
