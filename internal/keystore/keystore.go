package keystore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/storage"
	"github.com/swapdotz/dotvault/pkg/crypto/adaptive"
)

// Key sizes.
const (
	// CardKeySize is the AES-128 card key length.
	CardKeySize = 16

	// MinMasterSize is the minimum master secret length.
	MinMasterSize = 16
)

// Derivation labels. Changing either invalidates every derived key.
const (
	deriveLabel = "dotvault/v1"
	wrapLabel   = "dotvault/v1/wrap"
)

const keyPrefix = "cardkeys/"

// Store hands out card keys for (token, generation) pairs.
type Store struct {
	master []byte
	cipher *adaptive.Cipher
	kv     storage.KVEngine
}

// New creates a key store from the master secret.
//
// The wrapping cipher is keyed with a secret derived from the master,
// so the master itself never touches the KV engine.
func New(master []byte, kv storage.KVEngine) (*Store, error) {
	if len(master) < MinMasterSize {
		return nil, fmt.Errorf("keystore: master secret must be at least %d bytes", MinMasterSize)
	}
	if kv == nil {
		return nil, errors.New("keystore: kv engine is required")
	}

	wrapKey := hmacSHA256(master, []byte(wrapLabel))
	cipher, err := adaptive.New(wrapKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: init wrap cipher: %w", err)
	}

	return &Store{
		master: append([]byte(nil), master...),
		cipher: cipher,
		kv:     kv,
	}, nil
}

// Derive computes the deterministic card key for a token generation.
func (s *Store) Derive(tokenID string, generation uint32) []byte {
	mac := hmac.New(sha256.New, s.master)
	mac.Write([]byte(deriveLabel))
	mac.Write([]byte(domain.NormalizeTokenID(tokenID)))
	mac.Write(genBytes(generation))
	return mac.Sum(nil)[:CardKeySize]
}

// CardKey returns the key a card holds at the given generation.
//
// A provisioned key stored for the pair wins over derivation.
func (s *Store) CardKey(ctx context.Context, tokenID string, generation uint32) ([]byte, error) {
	tokenID = domain.NormalizeTokenID(tokenID)

	wrapped, err := s.kv.Get(ctx, storageKey(tokenID, generation))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return s.Derive(tokenID, generation), nil
		}
		return nil, domain.ErrStorageError.WithDetails("load card key").WithCause(err)
	}

	key, err := s.cipher.Decrypt(wrapped, aad(tokenID, generation))
	if err != nil {
		return nil, domain.ErrInternalServer.WithDetails("unwrap card key").WithCause(err)
	}
	if len(key) != CardKeySize {
		return nil, domain.ErrInternalServer.WithDetails("stored card key has wrong size")
	}

	return key, nil
}

// Put wraps and stores an explicit card key for a token generation.
//
// Provisioning uses this to pin the key a factory-personalized card
// shipped with.
func (s *Store) Put(ctx context.Context, tokenID string, generation uint32, key []byte) error {
	if len(key) != CardKeySize {
		return fmt.Errorf("keystore: card key must be %d bytes", CardKeySize)
	}
	tokenID = domain.NormalizeTokenID(tokenID)

	wrapped, err := s.cipher.Encrypt(key, aad(tokenID, generation))
	if err != nil {
		return domain.ErrInternalServer.WithDetails("wrap card key").WithCause(err)
	}

	if err := s.kv.Set(ctx, storageKey(tokenID, generation), wrapped); err != nil {
		return domain.ErrStorageError.WithDetails("store card key").WithCause(err)
	}

	return nil
}

// Delete removes a provisioned key, falling back to derivation.
func (s *Store) Delete(ctx context.Context, tokenID string, generation uint32) error {
	tokenID = domain.NormalizeTokenID(tokenID)
	if err := s.kv.Delete(ctx, storageKey(tokenID, generation)); err != nil {
		return domain.ErrStorageError.WithDetails("delete card key").WithCause(err)
	}
	return nil
}

func storageKey(tokenID string, generation uint32) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", keyPrefix, tokenID, generation))
}

func aad(tokenID string, generation uint32) []byte {
	out := make([]byte, 0, len(tokenID)+4)
	out = append(out, tokenID...)
	out = append(out, genBytes(generation)...)
	return out
}

func genBytes(generation uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], generation)
	return buf[:]
}

func hmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}
