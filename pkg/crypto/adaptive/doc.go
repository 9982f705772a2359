// Package adaptive provides authenticated encryption with automatic
// algorithm selection.
//
// The key store wraps card master keys with an AEAD before they touch
// disk. This package picks the cipher for that job based on what the
// host CPU accelerates:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for systems without AES-NI
//
// Usage:
//
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
//
// All cipher operations are safe for concurrent use.
package adaptive
