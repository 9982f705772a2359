package suite

import (
	"crypto/aes"
	"crypto/cipher"
)

// aesCMAC is AES-128 CBC with CMAC-based session key derivation. The
// session key is AES-CMAC(cardKey, SV1) with the standard session
// vector built from RndA and RndB.
type aesCMAC struct{}

func (s *aesCMAC) Name() string { return "aes-cmac" }

func (s *aesCMAC) BlockSize() int { return aes.BlockSize }

func (s *aesCMAC) EncryptBlocks(key, iv, plaintext []byte) ([]byte, error) {
	return cbcEncrypt(key, iv, plaintext)
}

func (s *aesCMAC) DecryptBlocks(key, iv, ciphertext []byte) ([]byte, error) {
	return cbcDecrypt(key, iv, ciphertext)
}

func (s *aesCMAC) DeriveSessionKey(key, rndA, rndB []byte) ([]byte, error) {
	if len(rndA) != aes.BlockSize || len(rndB) != aes.BlockSize {
		return nil, ErrBadChallenge
	}
	if len(key) != 16 {
		return nil, ErrBadKeySize
	}

	// SV1 layout: label(6) || RndA[0:2] || (RndA[2:8] XOR RndB[0:6]) ||
	// RndB[6:16] || RndA[8:16]
	sv1 := make([]byte, 32)
	copy(sv1, []byte{0xA5, 0x5A, 0x00, 0x01, 0x00, 0x80})
	copy(sv1[6:8], rndA[:2])
	for i := 0; i < 6; i++ {
		sv1[8+i] = rndA[2+i] ^ rndB[i]
	}
	copy(sv1[14:24], rndB[6:16])
	copy(sv1[24:32], rndA[8:16])

	return cmac(key, sv1)
}

// cmac computes AES-CMAC (NIST SP 800-38B) over msg.
func cmac(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	k1, k2 := cmacSubkeys(block)

	n := (len(msg) + 15) / 16
	if n == 0 {
		n = 1
	}
	lastComplete := len(msg) != 0 && len(msg)%16 == 0

	last := make([]byte, 16)
	if lastComplete {
		copy(last, msg[(n-1)*16:])
		xorBlock(last, last, k1)
	} else {
		remain := len(msg) - (n-1)*16
		if remain > 0 {
			copy(last, msg[(n-1)*16:])
		}
		last[remain] = 0x80
		xorBlock(last, last, k2)
	}

	x := make([]byte, 16)
	y := make([]byte, 16)
	for i := 0; i < n-1; i++ {
		xorBlock(y, x, msg[i*16:(i+1)*16])
		block.Encrypt(x, y)
	}
	xorBlock(y, x, last)
	block.Encrypt(x, y)
	return x, nil
}

func cmacSubkeys(block cipher.Block) (k1, k2 []byte) {
	const rb = 0x87
	zero := make([]byte, 16)
	l := make([]byte, 16)
	block.Encrypt(l, zero)

	k1 = make([]byte, 16)
	shiftLeft1(k1, l)
	if l[0]&0x80 != 0 {
		k1[15] ^= rb
	}

	k2 = make([]byte, 16)
	shiftLeft1(k2, k1)
	if k1[0]&0x80 != 0 {
		k2[15] ^= rb
	}
	return k1, k2
}

func shiftLeft1(dst, src []byte) {
	var carry byte
	for i := len(src) - 1; i >= 0; i-- {
		b := src[i]
		dst[i] = (b << 1) | carry
		carry = (b >> 7) & 1
	}
}

func xorBlock(dst, a, b []byte) {
	for i := 0; i < len(a) && i < len(b); i++ {
		dst[i] = a[i] ^ b[i]
	}
}
