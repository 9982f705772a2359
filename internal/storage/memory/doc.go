// Package memory provides in-memory storage for DotVault.
//
// The session store here is the only home of transfer sessions: they
// are short-lived, carry secret scratch material (card challenges,
// session keys, pending card keys) that must never be written to disk,
// and are simply retried if the process restarts.
//
// The package also carries in-memory variants of the durable entity
// stores so tests and demo tooling can run without a Badger directory.
//
// Thread Safety:
//
// All operations are thread-safe through fine-grained locking.
// Read operations use RLock, write operations use Lock.
package memory
