// Package protocol implements the card-facing transfer protocol: the
// mutual authentication state machine and the key-rotation command
// builder.
//
// The package is pure: it consumes and produces apdu frames and binary
// state, performs all cryptography through pkg/crypto/suite, and never
// touches storage or transport. The service layer owns persistence of
// the state between round trips.
//
// Authentication follows the AES handshake of DESFire-style secure
// elements. The server proves possession of the card key by decrypting
// the card's challenge; the card proves the same by returning the
// server's rotated challenge. Success is established exclusively by
// server-side decryption, never by caller claims.
package protocol
