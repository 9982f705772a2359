// Package suite provides the block cipher suites used to talk to
// secure-element tokens.
//
// A Suite performs the card's declared cipher operations (CBC block
// encryption/decryption and session key derivation) given key material
// supplied by the trusted key store. Suites are deterministic and
// stateless; key selection by (token, key generation) happens upstream.
//
// Two suites are registered:
//
//   - aes-legacy: AES-128 with the classic DESFire session key recipe
//     (interleaved RndA/RndB quartets)
//   - aes-cmac: AES-128 with CMAC-based session key derivation
//
// The registry picks a suite from a token's key generation, so old
// tokens keep authenticating with the recipe they were provisioned
// under while new generations use the CMAC derivation.
package suite
