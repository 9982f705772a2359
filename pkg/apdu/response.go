// Package apdu implements the command codec for secure-element frames.
package apdu

import (
	"errors"
	"fmt"
)

// SW is a two-byte card status word (e.g. 0x9100).
type SW uint16

// Status words recognized by the protocol. Anything else is a hard
// failure of the current step.
const (
	SWOK               SW = 0x9100 // operation succeeded
	SWAdditionalFrame  SW = 0x91AF // more frames follow
	SWLengthError      SW = 0x917E // command length invalid
	SWAuthError        SW = 0x91AE // authentication failed
	SWCryptoError      SW = 0x9197 // cryptogram verification failed
	SWPermissionDenied SW = 0x919D // access rights insufficient
	SWParameterError   SW = 0x919E // parameter out of range
	SWAppNotFound      SW = 0x91A0 // application not found
	SWFileNotFound     SW = 0x91F0 // file not found
	SWOutOfMemory      SW = 0x910E // insufficient NV memory
	SWAborted          SW = 0x91CA // command aborted
)

// ErrTruncated indicates a response frame too short to carry a status word.
var ErrTruncated = errors.New("apdu: response frame truncated")

// Known reports whether sw is one of the recognized status words.
func (sw SW) Known() bool {
	switch sw {
	case SWOK, SWAdditionalFrame, SWLengthError, SWAuthError, SWCryptoError,
		SWPermissionDenied, SWParameterError, SWAppNotFound, SWFileNotFound,
		SWOutOfMemory, SWAborted:
		return true
	}
	return false
}

// String returns a short description suitable for logs. Only the status
// word itself is ever rendered, never payload bytes.
func (sw SW) String() string {
	switch sw {
	case SWOK:
		return "9100 ok"
	case SWAdditionalFrame:
		return "91AF additional frame"
	case SWLengthError:
		return "917E length error"
	case SWAuthError:
		return "91AE authentication error"
	case SWCryptoError:
		return "9197 crypto error"
	case SWPermissionDenied:
		return "919D permission denied"
	case SWParameterError:
		return "919E parameter error"
	case SWAppNotFound:
		return "91A0 application not found"
	case SWFileNotFound:
		return "91F0 file not found"
	case SWOutOfMemory:
		return "910E out of memory"
	case SWAborted:
		return "91CA aborted"
	}
	return fmt.Sprintf("%04X unrecognized", uint16(sw))
}

// SplitResponse separates a response frame into payload and status word.
// Returns ErrTruncated when the frame cannot carry a status word.
func SplitResponse(f Frame) ([]byte, SW, error) {
	if len(f) < 2 {
		return nil, 0, ErrTruncated
	}
	n := len(f) - 2
	return f[:n], SW(uint16(f[n])<<8 | uint16(f[n+1])), nil
}

// Respond builds a response frame from payload and status word.
// Used by card simulators and tests; the server itself only parses.
func Respond(payload []byte, sw SW) Frame {
	f := make(Frame, 0, len(payload)+2)
	f = append(f, payload...)
	f = append(f, byte(sw>>8), byte(sw))
	return f
}
