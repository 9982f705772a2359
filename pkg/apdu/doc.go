// Package apdu implements the command codec for secure-element frames.
//
// Frames are opaque byte strings exchanged with a DESFire-style
// contactless card through an untrusted transport relay. The codec
// understands exactly two positions in a frame: the instruction byte of
// a command and the trailing two-byte status word of a response.
// Everything in between is payload and is never interpreted here.
//
//   - wrap.go: wrapped-APDU command construction and chunking
//   - response.go: response splitting and status words
//   - encoding.go: transport-safe text encoding (base64)
package apdu
