package suite

import "crypto/aes"

// aesLegacy is AES-128 CBC with the classic DESFire session key recipe:
//
//	session = RndA[0:4] || RndB[0:4] || RndA[12:16] || RndB[12:16]
type aesLegacy struct{}

func (s *aesLegacy) Name() string { return "aes-legacy" }

func (s *aesLegacy) BlockSize() int { return aes.BlockSize }

func (s *aesLegacy) EncryptBlocks(key, iv, plaintext []byte) ([]byte, error) {
	return cbcEncrypt(key, iv, plaintext)
}

func (s *aesLegacy) DecryptBlocks(key, iv, ciphertext []byte) ([]byte, error) {
	return cbcDecrypt(key, iv, ciphertext)
}

func (s *aesLegacy) DeriveSessionKey(_, rndA, rndB []byte) ([]byte, error) {
	if len(rndA) != aes.BlockSize || len(rndB) != aes.BlockSize {
		return nil, ErrBadChallenge
	}
	key := make([]byte, 16)
	copy(key[0:4], rndA[0:4])
	copy(key[4:8], rndB[0:4])
	copy(key[8:12], rndA[12:16])
	copy(key[12:16], rndB[12:16])
	return key, nil
}
