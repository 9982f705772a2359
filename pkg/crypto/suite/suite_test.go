package suite

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func randBlock(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRotateLeftRoundTrip(t *testing.T) {
	for _, n := range []int{1, 5, 15} {
		buf := randBlock(t)
		rotated := RotateLeft(buf, n)
		back := RotateLeft(rotated, len(buf)-n)
		if !bytes.Equal(back, buf) {
			t.Errorf("rotate by %d did not round trip", n)
		}
	}
}

func TestRotateLeftByOne(t *testing.T) {
	in := []byte{0x01, 0x02, 0x03, 0x04}
	want := []byte{0x02, 0x03, 0x04, 0x01}
	if got := RotateLeft(in, 1); !bytes.Equal(got, want) {
		t.Errorf("RotateLeft = % X, want % X", got, want)
	}
	// Input must be untouched.
	if !bytes.Equal(in, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Error("RotateLeft modified its input")
	}
}

func TestRotateLeftEmpty(t *testing.T) {
	if got := RotateLeft(nil, 1); len(got) != 0 {
		t.Errorf("RotateLeft(nil) = % X", got)
	}
}

func TestCBCRoundTrip(t *testing.T) {
	reg := NewRegistry(DefaultCMACCutover)
	key := randBlock(t)
	plaintext := append(randBlock(t), randBlock(t)...)

	for _, gen := range []uint32{0, 5} {
		s := reg.ForKeyVersion(gen)
		ct, err := s.EncryptBlocks(key, ZeroIV(), plaintext)
		if err != nil {
			t.Fatalf("%s encrypt: %v", s.Name(), err)
		}
		if bytes.Equal(ct, plaintext) {
			t.Fatalf("%s ciphertext equals plaintext", s.Name())
		}
		pt, err := s.DecryptBlocks(key, ZeroIV(), ct)
		if err != nil {
			t.Fatalf("%s decrypt: %v", s.Name(), err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Errorf("%s round trip mismatch", s.Name())
		}
	}
}

func TestRejectUnalignedInput(t *testing.T) {
	reg := NewRegistry(DefaultCMACCutover)
	key := randBlock(t)

	for _, gen := range []uint32{0, 5} {
		s := reg.ForKeyVersion(gen)
		if _, err := s.EncryptBlocks(key, ZeroIV(), []byte{0x01, 0x02}); err != ErrNotBlockAligned {
			t.Errorf("%s encrypt: got %v, want ErrNotBlockAligned", s.Name(), err)
		}
		if _, err := s.DecryptBlocks(key, ZeroIV(), make([]byte, 17)); err != ErrNotBlockAligned {
			t.Errorf("%s decrypt: got %v, want ErrNotBlockAligned", s.Name(), err)
		}
		if _, err := s.EncryptBlocks(key, ZeroIV(), nil); err != ErrNotBlockAligned {
			t.Errorf("%s encrypt empty: got %v, want ErrNotBlockAligned", s.Name(), err)
		}
	}
}

func TestRejectBadKey(t *testing.T) {
	reg := NewRegistry(DefaultCMACCutover)
	s := reg.ForKeyVersion(0)
	if _, err := s.EncryptBlocks([]byte{0x01}, ZeroIV(), make([]byte, 16)); err != ErrBadKeySize {
		t.Errorf("got %v, want ErrBadKeySize", err)
	}
}

func TestLegacySessionKeyRecipe(t *testing.T) {
	s := &aesLegacy{}
	rndA := make([]byte, 16)
	rndB := make([]byte, 16)
	for i := range rndA {
		rndA[i] = byte(i)
		rndB[i] = byte(0x10 + i)
	}

	key, err := s.DeriveSessionKey(nil, rndA, rndB)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x00, 0x01, 0x02, 0x03,
		0x10, 0x11, 0x12, 0x13,
		0x0C, 0x0D, 0x0E, 0x0F,
		0x1C, 0x1D, 0x1E, 0x1F,
	}
	if !bytes.Equal(key, want) {
		t.Errorf("session key = % X, want % X", key, want)
	}
}

func TestCMACSessionKeyDeterministic(t *testing.T) {
	s := &aesCMAC{}
	cardKey := randBlock(t)
	rndA := randBlock(t)
	rndB := randBlock(t)

	k1, err := s.DeriveSessionKey(cardKey, rndA, rndB)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := s.DeriveSessionKey(cardKey, rndA, rndB)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(k1, k2) {
		t.Error("derivation not deterministic")
	}
	if len(k1) != 16 {
		t.Errorf("session key length = %d", len(k1))
	}

	// A different challenge must produce a different key.
	k3, err := s.DeriveSessionKey(cardKey, randBlock(t), rndB)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(k1, k3) {
		t.Error("distinct challenges produced identical session keys")
	}
}

func TestDeriveRejectsShortChallenge(t *testing.T) {
	reg := NewRegistry(DefaultCMACCutover)
	key := randBlock(t)
	for _, gen := range []uint32{0, 5} {
		s := reg.ForKeyVersion(gen)
		if _, err := s.DeriveSessionKey(key, []byte{0x01}, randBlock(t)); err != ErrBadChallenge {
			t.Errorf("%s: got %v, want ErrBadChallenge", s.Name(), err)
		}
	}
}

// RFC 4493 test vector: AES-CMAC of the empty string.
func TestCMACVector(t *testing.T) {
	key := []byte{
		0x2B, 0x7E, 0x15, 0x16, 0x28, 0xAE, 0xD2, 0xA6,
		0xAB, 0xF7, 0x15, 0x88, 0x09, 0xCF, 0x4F, 0x3C,
	}
	want := []byte{
		0xBB, 0x1D, 0x69, 0x29, 0xE9, 0x59, 0x37, 0x28,
		0x7F, 0xA3, 0x7D, 0x12, 0x9B, 0x75, 0x67, 0x46,
	}
	got, err := cmac(key, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("cmac = % X, want % X", got, want)
	}
}

func TestRegistryCutover(t *testing.T) {
	reg := NewRegistry(2)
	if got := reg.ForKeyVersion(0).Name(); got != "aes-legacy" {
		t.Errorf("gen 0 -> %s", got)
	}
	if got := reg.ForKeyVersion(1).Name(); got != "aes-legacy" {
		t.Errorf("gen 1 -> %s", got)
	}
	if got := reg.ForKeyVersion(2).Name(); got != "aes-cmac" {
		t.Errorf("gen 2 -> %s", got)
	}

	if _, err := reg.ByName("aes-cmac"); err != nil {
		t.Errorf("ByName(aes-cmac): %v", err)
	}
	if _, err := reg.ByName("des"); err == nil {
		t.Error("ByName(des) should fail")
	}
}

func TestCRC32Card(t *testing.T) {
	// Known property: CRC of an empty input is the initial value.
	if got := CRC32Card(nil); got != 0xFFFFFFFF {
		t.Errorf("CRC32Card(nil) = %08X", got)
	}
	// Deterministic and input-sensitive.
	a := CRC32Card([]byte{0x01, 0x02})
	b := CRC32Card([]byte{0x01, 0x03})
	if a == b {
		t.Error("distinct inputs produced identical CRCs")
	}
}

func TestPaddingRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 21} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}
		padded := PadISO9797M2(data, 16)
		if len(padded)%16 != 0 {
			t.Errorf("len %d: padded length %d not block aligned", n, len(padded))
		}
		if len(padded) == len(data) {
			t.Errorf("len %d: padding must always add bytes", n)
		}
		out, err := UnpadISO9797M2(padded)
		if err != nil {
			t.Fatalf("len %d: unpad: %v", n, err)
		}
		if !bytes.Equal(out, data) {
			t.Errorf("len %d: round trip mismatch", n)
		}
	}
}

func TestUnpadRejectsGarbage(t *testing.T) {
	if _, err := UnpadISO9797M2(make([]byte, 16)); err == nil {
		t.Error("all-zero block should fail unpadding")
	}
}
