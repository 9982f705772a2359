package suite

import "errors"

// CRC32Card computes the CRC32 used by the card for key change
// integrity (polynomial 0xEDB88320, no final inversion).
func CRC32Card(data []byte) uint32 {
	const poly = uint32(0xEDB88320)
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// PadISO9797M2 pads data to a block multiple with 0x80 followed by
// zeros (ISO 9797-1 padding method 2). Always adds at least one byte.
func PadISO9797M2(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// ErrBadPadding indicates ISO 9797-1 M2 unpadding failed.
var ErrBadPadding = errors.New("suite: bad padding")

// UnpadISO9797M2 strips ISO 9797-1 method 2 padding.
func UnpadISO9797M2(data []byte) ([]byte, error) {
	idx := len(data) - 1
	for idx >= 0 && data[idx] == 0x00 {
		idx--
	}
	if idx < 0 || data[idx] != 0x80 {
		return nil, ErrBadPadding
	}
	return data[:idx], nil
}
