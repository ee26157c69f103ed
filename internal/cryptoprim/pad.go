package cryptoprim

import "errors"

// ErrNoPadding is returned by Unpad when the input does not carry a
// recognizable padding marker — distinguishable from a successful
// unpad of an empty result.
var ErrNoPadding = errors.New("cryptoprim: no padding detected")

// Pad appends length-suffix padding to b so the result's length is a
// multiple of block and strictly greater than len(b). The final byte
// of the last block encodes how many padding bytes were added (1..block),
// self-describing so Unpad can recover the original length without
// knowing it in advance.
func Pad(b []byte, block int) []byte {
	padLen := block - (len(b) % block)
	out := make([]byte, len(b)+padLen)
	copy(out, b)
	for i := len(b); i < len(out)-1; i++ {
		out[i] = 0
	}
	out[len(out)-1] = byte(padLen)
	return out
}

// Unpad reverses Pad. It returns ErrNoPadding if padded is empty or its
// trailing marker byte does not describe a consistent padding length.
func Unpad(padded []byte) ([]byte, error) {
	if len(padded) == 0 {
		return nil, ErrNoPadding
	}
	padLen := int(padded[len(padded)-1])
	if padLen == 0 || padLen > len(padded) {
		return nil, ErrNoPadding
	}
	return padded[:len(padded)-padLen], nil
}
