// Package protocol implements the card-facing transfer protocol.
package protocol

import (
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/pkg/apdu"
	"github.com/swapdotz/dotvault/pkg/crypto/suite"
)

// AuthState is the position in the authentication handshake.
type AuthState string

const (
	// StateStart means no command has been issued yet.
	StateStart AuthState = "START"

	// StateWaitCardChallenge means the authenticate command is out and
	// the card's encrypted challenge is awaited.
	StateWaitCardChallenge AuthState = "WAIT_CARD_CHALLENGE"

	// StateWaitCardVerify means the server's response is out and the
	// card's proof is awaited.
	StateWaitCardVerify AuthState = "WAIT_CARD_VERIFY"

	// StateAuthenticated is terminal success: a session key exists.
	StateAuthenticated AuthState = "AUTHENTICATED"

	// StateFailed is terminal failure. The attempt is not resumable.
	StateFailed AuthState = "FAILED"
)

// DefaultKeySlot is the card key slot used for transfer authentication.
const DefaultKeySlot byte = 0x00

// Authenticator drives one mutual authentication attempt against a
// card. It is resumable across round trips via Resume; the caller
// persists State, RndA and RndB between calls.
type Authenticator struct {
	suite   suite.Suite
	cardKey []byte
	keySlot byte

	state      AuthState
	rndA       []byte
	rndB       []byte
	sessionKey []byte

	// rand is swappable for deterministic tests.
	rand io.Reader
}

// NewAuthenticator creates an authenticator in START for the given
// suite and card key.
func NewAuthenticator(s suite.Suite, cardKey []byte, keySlot byte) *Authenticator {
	return &Authenticator{
		suite:   s,
		cardKey: cardKey,
		keySlot: keySlot,
		state:   StateStart,
		rand:    rand.Reader,
	}
}

// Resume reconstructs an in-flight authenticator from persisted state.
func Resume(s suite.Suite, cardKey []byte, keySlot byte, state AuthState, rndA, rndB []byte) *Authenticator {
	return &Authenticator{
		suite:   s,
		cardKey: cardKey,
		keySlot: keySlot,
		state:   state,
		rndA:    rndA,
		rndB:    rndB,
		rand:    rand.Reader,
	}
}

// State returns the current handshake position.
func (a *Authenticator) State() AuthState {
	return a.state
}

// RndA returns the server challenge for state persistence.
func (a *Authenticator) RndA() []byte {
	return a.rndA
}

// RndB returns the recovered card challenge for state persistence.
func (a *Authenticator) RndB() []byte {
	return a.rndB
}

// SessionKey returns the derived session key. Only valid once the
// state is AUTHENTICATED.
func (a *Authenticator) SessionKey() []byte {
	return a.sessionKey
}

// FirstCommand emits the initial authenticate command and moves to
// WAIT_CARD_CHALLENGE. Valid only in START.
func (a *Authenticator) FirstCommand() (apdu.Frame, error) {
	if a.state != StateStart {
		return nil, domain.ErrInvalidPhase.WithDetails("authentication already started")
	}
	a.state = StateWaitCardChallenge
	return apdu.Wrap(apdu.InsAuthenticate, []byte{a.keySlot}), nil
}

// HandleResponse consumes one card response. While the handshake is in
// flight it returns the next command to relay; done is true once the
// state is AUTHENTICATED. Any verification failure is terminal.
func (a *Authenticator) HandleResponse(resp apdu.Frame) (next apdu.Frame, done bool, err error) {
	switch a.state {
	case StateWaitCardChallenge:
		next, err = a.handleCardChallenge(resp)
		return next, false, err
	case StateWaitCardVerify:
		err = a.handleCardVerify(resp)
		return nil, err == nil, err
	case StateStart:
		return nil, false, domain.ErrInvalidPhase.WithDetails("authentication not started")
	case StateAuthenticated:
		return nil, false, domain.ErrInvalidPhase.WithDetails("already authenticated")
	default:
		return nil, false, domain.ErrAuthFailed.WithDetails("authentication previously failed")
	}
}

// handleCardChallenge processes E(RndB) and builds E(RndA || rotl1(RndB)).
func (a *Authenticator) handleCardChallenge(resp apdu.Frame) (apdu.Frame, error) {
	payload, sw, err := apdu.SplitResponse(resp)
	if err != nil {
		a.fail()
		return nil, domain.ErrMalformedInput.WithCause(err)
	}
	if sw != apdu.SWAdditionalFrame {
		a.fail()
		return nil, domain.ErrAuthFailed.WithDetails("unexpected status word " + sw.String())
	}
	block := a.suite.BlockSize()
	if len(payload) != block {
		a.fail()
		return nil, domain.ErrAuthFailed.WithDetails("challenge length invalid")
	}

	rndB, err := a.suite.DecryptBlocks(a.cardKey, suite.ZeroIV(), payload)
	if err != nil {
		a.fail()
		return nil, domain.ErrAuthFailed.WithCause(err)
	}

	rndA := make([]byte, block)
	if _, err := io.ReadFull(a.rand, rndA); err != nil {
		a.fail()
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	// Second command: E(RndA || rotl1(RndB)), chained on the card's
	// ciphertext as IV.
	plain := append(append([]byte{}, rndA...), suite.RotateLeft(rndB, 1)...)
	enc, err := a.suite.EncryptBlocks(a.cardKey, payload, plain)
	if err != nil {
		a.fail()
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	a.rndA = rndA
	a.rndB = rndB
	a.state = StateWaitCardVerify
	return apdu.Wrap(apdu.InsAdditionalFrame, enc), nil
}

// handleCardVerify checks E(rotl1(RndA)) and derives the session key.
func (a *Authenticator) handleCardVerify(resp apdu.Frame) error {
	payload, sw, err := apdu.SplitResponse(resp)
	if err != nil {
		a.fail()
		return domain.ErrMalformedInput.WithCause(err)
	}
	if sw != apdu.SWOK {
		a.fail()
		return domain.ErrAuthFailed.WithDetails("unexpected status word " + sw.String())
	}
	block := a.suite.BlockSize()
	if len(payload) != block {
		a.fail()
		return domain.ErrAuthFailed.WithDetails("proof length invalid")
	}

	proof, err := a.suite.DecryptBlocks(a.cardKey, suite.ZeroIV(), payload)
	if err != nil {
		a.fail()
		return domain.ErrAuthFailed.WithCause(err)
	}

	expected := suite.RotateLeft(a.rndA, 1)
	if subtle.ConstantTimeCompare(proof, expected) != 1 {
		a.fail()
		return domain.ErrAuthFailed.WithDetails("card proof mismatch")
	}

	key, err := a.suite.DeriveSessionKey(a.cardKey, a.rndA, a.rndB)
	if err != nil {
		a.fail()
		return domain.ErrInternalServer.WithCause(err)
	}

	a.sessionKey = key
	a.state = StateAuthenticated
	return nil
}

func (a *Authenticator) fail() {
	a.state = StateFailed
	a.rndA = nil
	a.rndB = nil
	a.sessionKey = nil
}
