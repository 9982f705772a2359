// Package token provides secret token generation and validation.
//
// Secrets handed to callers carry a short prefix so logs and support
// tooling can tell them apart at a glance:
//
//   - Verify tokens:   dvvt_ followed by 43 characters of Base64
//     RawURL encoded random bytes
//   - API key secrets: dvak_ with the same body
//
// Security:
//
//   - Uses crypto/rand for CSPRNG
//   - SHA-256 hashing with constant-time comparison
//   - Secrets are never stored, only hashes
package token
