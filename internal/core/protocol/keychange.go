// Package protocol implements the card-facing transfer protocol.
package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/pkg/apdu"
	"github.com/swapdotz/dotvault/pkg/crypto/suite"
)

// Key block geometry.
const (
	// CardKeySize is the AES-128 card key length.
	CardKeySize = 16

	// keyBlockSize is the padded key change payload: key (16) +
	// version (1) + CRC (4), ISO 9797-1 M2 padded to two blocks.
	keyBlockSize = 32

	// DefaultMaxFrameData is the card's per-frame data limit for key
	// change commands.
	DefaultMaxFrameData = 32
)

// BuildKeyChange assembles the encrypted change-key command frames for
// installing newKey at newVersion into keySlot.
//
// The plaintext block is newKey || version || CRC32(newKey), padded to
// 32 bytes and CBC-encrypted under the session key with a zero IV. The
// result is split across an initial 0xC4 frame plus 0xAF continuations
// when it exceeds maxFrame bytes of data.
func BuildKeyChange(s suite.Suite, sessionKey, newKey []byte, newVersion byte, keySlot byte, maxFrame int) ([]apdu.Frame, error) {
	if len(newKey) != CardKeySize {
		return nil, domain.ErrInternalServer.WithDetails("new key must be 16 bytes")
	}
	if len(sessionKey) != CardKeySize {
		return nil, domain.ErrInvalidPhase.WithDetails("no session key established")
	}
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameData
	}

	block := make([]byte, 0, CardKeySize+1+4)
	block = append(block, newKey...)
	block = append(block, newVersion)

	crc := make([]byte, 4)
	binary.LittleEndian.PutUint32(crc, suite.CRC32Card(newKey))
	block = append(block, crc...)

	padded := suite.PadISO9797M2(block, s.BlockSize())
	if len(padded) != keyBlockSize {
		return nil, domain.ErrInternalServer.WithDetails("unexpected key block size")
	}

	enc, err := s.EncryptBlocks(sessionKey, suite.ZeroIV(), padded)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	return apdu.Chunk(apdu.InsChangeKey, []byte{keySlot}, enc, maxFrame), nil
}

// FramesHash computes the SHA-256 hex digest over the concatenation of
// the issued frames. Verify tokens are bound to this digest so a
// confirmation can only settle the exact rotation it was issued for.
func FramesHash(frames []apdu.Frame) string {
	h := sha256.New()
	for _, f := range frames {
		h.Write(f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ConfirmKeyChange inspects the card's final response to a key change.
// Only the status word is interpreted: 0x9100 accepts the rotation,
// anything else rejects it without state change.
func ConfirmKeyChange(final apdu.Frame) error {
	_, sw, err := apdu.SplitResponse(final)
	if err != nil {
		return domain.ErrMalformedInput.WithCause(err)
	}
	if sw != apdu.SWOK {
		return domain.ErrKeyChangeFailed.WithDetails("card answered " + sw.String())
	}
	return nil
}
