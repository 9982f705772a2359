package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm names an AEAD construction.
type Algorithm string

const (
	AlgorithmAESGCM   Algorithm = "aes-gcm"
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"
)

var errCiphertextTooShort = errors.New("adaptive: ciphertext shorter than nonce")

// Cipher seals and opens short payloads such as wrapped keys. Safe for
// concurrent use.
type Cipher struct {
	aead cipher.AEAD
	algo Algorithm
}

// New selects the algorithm for this host and builds a cipher over key.
// amd64 and arm64 run AES in hardware through the Go runtime; other
// architectures get ChaCha20-Poly1305, which is fast in software.
func New(key []byte) (*Cipher, error) {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return NewWithAlgorithm(key, AlgorithmAESGCM)
	default:
		return NewWithAlgorithm(key, AlgorithmChaCha20)
	}
}

// NewWithAlgorithm builds a cipher with an explicit algorithm. AES-GCM
// accepts 16, 24, or 32 byte keys; ChaCha20-Poly1305 requires 32.
func NewWithAlgorithm(key []byte, algo Algorithm) (*Cipher, error) {
	switch algo {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("adaptive: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("adaptive: %w", err)
		}
		return &Cipher{aead: aead, algo: algo}, nil
	case AlgorithmChaCha20:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("adaptive: %w", err)
		}
		return &Cipher{aead: aead, algo: algo}, nil
	default:
		return nil, fmt.Errorf("adaptive: unknown algorithm %q", algo)
	}
}

// Algorithm reports which AEAD this cipher runs.
func (c *Cipher) Algorithm() Algorithm {
	return c.algo
}

// Encrypt seals plaintext under a fresh random nonce and binds
// additionalData into the authentication tag. The nonce leads the
// returned ciphertext.
func (c *Cipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("adaptive: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Decrypt opens a ciphertext produced by Encrypt. additionalData must
// match what was sealed or authentication fails.
func (c *Cipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, errCiphertextTooShort
	}
	plaintext, err := c.aead.Open(nil, ciphertext[:n], ciphertext[n:], additionalData)
	if err != nil {
		return nil, fmt.Errorf("adaptive: %w", err)
	}
	return plaintext, nil
}

// Overhead is the per-message expansion: nonce plus authentication tag.
func (c *Cipher) Overhead() int {
	return c.aead.NonceSize() + c.aead.Overhead()
}
