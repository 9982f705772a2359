// Package keystore manages per-card AES keys.
//
// Keys come from two sources. The default is deterministic derivation
// from the master secret, so a card key for any (token, generation)
// pair can be recomputed without state. Explicitly provisioned keys
// override derivation: they are wrapped with an AEAD cipher keyed off
// the master secret and stored in the KV engine, bound to their token
// and generation through the AEAD's additional data.
package keystore
