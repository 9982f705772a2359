// Package apdu implements the command codec for secure-element frames.
package apdu

// Frame is a raw command or response frame.
//
// Command frames use the wrapped-APDU layout:
//
//	0x90 INS 0x00 0x00 [Lc data...] 0x00
//
// Response frames are payload bytes followed by a two-byte status word.
type Frame []byte

// Instruction codes used by the transfer protocol.
const (
	// InsAuthenticate starts ISO/AES mutual authentication (key slot in data).
	InsAuthenticate = 0x1A

	// InsAdditionalFrame continues a multi-frame exchange in either direction.
	InsAdditionalFrame = 0xAF

	// InsChangeKey rewrites a key slot under an authenticated session.
	InsChangeKey = 0xC4
)

// frameClass is the wrapped-APDU class byte.
const frameClass = 0x90

// Wrap builds a wrapped-APDU command frame for the given instruction and
// payload. A nil or empty payload produces a header-only frame.
func Wrap(ins byte, data []byte) Frame {
	if len(data) == 0 {
		return Frame{frameClass, ins, 0x00, 0x00, 0x00}
	}
	f := make(Frame, 0, 5+len(data)+1)
	f = append(f, frameClass, ins, 0x00, 0x00, byte(len(data)))
	f = append(f, data...)
	f = append(f, 0x00)
	return f
}

// Instruction returns the instruction byte of a command frame, or 0 for
// frames too short to carry one.
func (f Frame) Instruction() byte {
	if len(f) < 2 {
		return 0
	}
	return f[1]
}

// Chunk splits a command payload across an initial frame and as many
// additional-frame continuations as needed. header is prepended to the
// payload of the first frame only (e.g. a key slot byte). max bounds the
// data bytes per frame; values < 1 produce a single unchunked frame.
func Chunk(ins byte, header, data []byte, max int) []Frame {
	full := make([]byte, 0, len(header)+len(data))
	full = append(full, header...)
	full = append(full, data...)

	if max < 1 || len(full) <= max {
		return []Frame{Wrap(ins, full)}
	}

	frames := []Frame{Wrap(ins, full[:max])}
	for off := max; off < len(full); off += max {
		end := off + max
		if end > len(full) {
			end = len(full)
		}
		frames = append(frames, Wrap(InsAdditionalFrame, full[off:end]))
	}
	return frames
}
