// Package cardsim emulates the card side of the transfer protocol: the
// mutual authentication handshake and encrypted key changes against a
// held master key. It backs the demo relay and the protocol tests; no
// production code path depends on it.
package cardsim

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"

	"github.com/swapdotz/dotvault/pkg/apdu"
	"github.com/swapdotz/dotvault/pkg/crypto/suite"
)

// keyBlockLen is the decrypted key change payload before padding:
// key (16) + version (1) + CRC (4).
const keyBlockLen = 16 + 1 + 4

// Card emulates one secure-element token. Not safe for concurrent use;
// a physical card talks to one reader at a time.
type Card struct {
	suite      suite.Suite
	key        []byte
	keyVersion byte
	rand       io.Reader

	// authentication handshake state
	rndB    []byte
	encRndB []byte
	authed  bool
	session []byte

	// in-flight key change accumulation
	changing  bool
	changeBuf []byte
}

// Option configures a Card.
type Option func(*Card)

// WithRand replaces the challenge source, for deterministic tests.
func WithRand(r io.Reader) Option {
	return func(c *Card) { c.rand = r }
}

// New creates a card holding the given master key.
func New(s suite.Suite, key []byte, opts ...Option) *Card {
	c := &Card{
		suite: s,
		key:   append([]byte(nil), key...),
		rand:  rand.Reader,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Key returns the card's current master key.
func (c *Card) Key() []byte {
	return append([]byte(nil), c.key...)
}

// KeyVersion returns the version byte installed with the current key.
func (c *Card) KeyVersion() byte {
	return c.keyVersion
}

// Authenticated reports whether a session key is established.
func (c *Card) Authenticated() bool {
	return c.authed
}

// SessionKey returns the established session key, nil when not
// authenticated.
func (c *Card) SessionKey() []byte {
	return append([]byte(nil), c.session...)
}

// SetSuite switches the cipher suite, as a reprovisioned card would.
func (c *Card) SetSuite(s suite.Suite) {
	c.suite = s
}

// Handle processes one command frame and returns the card's response.
func (c *Card) Handle(cmd apdu.Frame) apdu.Frame {
	ins, data, ok := parseCommand(cmd)
	if !ok {
		return apdu.Respond(nil, apdu.SWLengthError)
	}

	switch ins {
	case apdu.InsAuthenticate:
		return c.startAuth(data)
	case apdu.InsAdditionalFrame:
		if c.changing {
			return c.continueKeyChange(data)
		}
		if c.rndB != nil {
			return c.finishAuth(data)
		}
		return apdu.Respond(nil, apdu.SWAborted)
	case apdu.InsChangeKey:
		return c.startKeyChange(data)
	default:
		return apdu.Respond(nil, apdu.SWParameterError)
	}
}

// startAuth answers the authenticate command with E(RndB).
func (c *Card) startAuth(data []byte) apdu.Frame {
	c.reset()
	if len(data) != 1 {
		return apdu.Respond(nil, apdu.SWParameterError)
	}

	block := c.suite.BlockSize()
	rndB := make([]byte, block)
	if _, err := io.ReadFull(c.rand, rndB); err != nil {
		return apdu.Respond(nil, apdu.SWOutOfMemory)
	}
	enc, err := c.suite.EncryptBlocks(c.key, suite.ZeroIV(), rndB)
	if err != nil {
		return apdu.Respond(nil, apdu.SWOutOfMemory)
	}

	c.rndB = rndB
	c.encRndB = enc
	return apdu.Respond(enc, apdu.SWAdditionalFrame)
}

// finishAuth checks E(RndA || rotl1(RndB)) and answers with the proof
// E(rotl1(RndA)), deriving the session key on success.
func (c *Card) finishAuth(data []byte) apdu.Frame {
	block := c.suite.BlockSize()
	if len(data) != 2*block {
		c.reset()
		return apdu.Respond(nil, apdu.SWLengthError)
	}

	// The reader's ciphertext chains on E(RndB) as IV.
	plain, err := c.suite.DecryptBlocks(c.key, c.encRndB, data)
	if err != nil {
		c.reset()
		return apdu.Respond(nil, apdu.SWAuthError)
	}
	rndA := plain[:block]
	if !bytes.Equal(plain[block:], suite.RotateLeft(c.rndB, 1)) {
		c.reset()
		return apdu.Respond(nil, apdu.SWAuthError)
	}

	proof, err := c.suite.EncryptBlocks(c.key, suite.ZeroIV(), suite.RotateLeft(rndA, 1))
	if err != nil {
		c.reset()
		return apdu.Respond(nil, apdu.SWAuthError)
	}
	session, err := c.suite.DeriveSessionKey(c.key, rndA, c.rndB)
	if err != nil {
		c.reset()
		return apdu.Respond(nil, apdu.SWAuthError)
	}

	c.session = session
	c.authed = true
	c.rndB = nil
	c.encRndB = nil
	return apdu.Respond(proof, apdu.SWOK)
}

// startKeyChange begins accumulating the encrypted key block. The
// first data byte is the key slot.
func (c *Card) startKeyChange(data []byte) apdu.Frame {
	if !c.authed {
		return apdu.Respond(nil, apdu.SWAuthError)
	}
	if len(data) < 1 {
		return apdu.Respond(nil, apdu.SWLengthError)
	}
	c.changing = true
	c.changeBuf = append([]byte(nil), data[1:]...)
	return c.advanceKeyChange()
}

func (c *Card) continueKeyChange(data []byte) apdu.Frame {
	c.changeBuf = append(c.changeBuf, data...)
	return c.advanceKeyChange()
}

func (c *Card) advanceKeyChange() apdu.Frame {
	want := 2 * c.suite.BlockSize()
	if len(c.changeBuf) < want {
		return apdu.Respond(nil, apdu.SWAdditionalFrame)
	}
	if len(c.changeBuf) > want {
		c.reset()
		return apdu.Respond(nil, apdu.SWLengthError)
	}
	return c.installKey()
}

// installKey decrypts the accumulated key block, checks its CRC, and
// swaps the master key. Success tears down the session: the new key
// must authenticate from scratch.
func (c *Card) installKey() apdu.Frame {
	padded, err := c.suite.DecryptBlocks(c.session, suite.ZeroIV(), c.changeBuf)
	c.changing = false
	c.changeBuf = nil
	if err != nil {
		return apdu.Respond(nil, apdu.SWCryptoError)
	}
	block, err := suite.UnpadISO9797M2(padded)
	if err != nil || len(block) != keyBlockLen {
		return apdu.Respond(nil, apdu.SWCryptoError)
	}

	newKey := block[:16]
	version := block[16]
	crc := binary.LittleEndian.Uint32(block[17:21])
	if crc != suite.CRC32Card(newKey) {
		return apdu.Respond(nil, apdu.SWCryptoError)
	}

	c.key = append([]byte(nil), newKey...)
	c.keyVersion = version
	c.reset()
	return apdu.Respond(nil, apdu.SWOK)
}

func (c *Card) reset() {
	c.rndB = nil
	c.encRndB = nil
	c.session = nil
	c.authed = false
	c.changing = false
	c.changeBuf = nil
}

// parseCommand splits a wrapped-APDU command frame.
func parseCommand(f apdu.Frame) (ins byte, data []byte, ok bool) {
	if len(f) < 5 || f[0] != 0x90 {
		return 0, nil, false
	}
	lc := int(f[4])
	if lc == 0 {
		return f[1], nil, len(f) == 5
	}
	if len(f) != 5+lc+1 {
		return 0, nil, false
	}
	return f[1], f[5 : 5+lc], true
}
