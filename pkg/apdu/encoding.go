// Package apdu implements the command codec for secure-element frames.
package apdu

import (
	"encoding/base64"
	"fmt"
)

// Encode renders a frame in the transport-safe text encoding used on the
// wire (standard base64). The relay forwards the decoded bytes verbatim.
func Encode(f Frame) string {
	return base64.StdEncoding.EncodeToString(f)
}

// Decode parses a transport-encoded frame.
func Decode(s string) (Frame, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("apdu: decode frame: %w", err)
	}
	return Frame(b), nil
}

// EncodeAll encodes a batch of frames in order.
func EncodeAll(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = Encode(f)
	}
	return out
}

// DecodeAll decodes a batch of transport-encoded frames in order.
func DecodeAll(in []string) ([]Frame, error) {
	out := make([]Frame, len(in))
	for i, s := range in {
		f, err := Decode(s)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
