package cryptoprim

import (
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the size of a file content fingerprint.
const HashSize = blake2b.Size256

// HashState accumulates a Blake2b-256 digest across multiple Update
// calls, used to fingerprint files as they are chunked for transfer.
type HashState struct {
	h hash.Hash
}

// HashInit starts a new hash state.
func HashInit() (*HashState, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: hash init: %w", err)
	}
	return &HashState{h: h}, nil
}

// Update feeds more bytes into the running digest.
func (s *HashState) Update(b []byte) {
	s.h.Write(b) //nolint:errcheck // hash.Hash.Write never fails
}

// Finish returns the 32-byte digest. The state must not be reused
// after Finish.
func (s *HashState) Finish() [HashSize]byte {
	var out [HashSize]byte
	copy(out[:], s.h.Sum(nil))
	return out
}

// Hash is a convenience wrapper equivalent to
// HashInit().Update(b).Finish() for a single buffer.
func Hash(b []byte) ([HashSize]byte, error) {
	s, err := HashInit()
	if err != nil {
		return [HashSize]byte{}, err
	}
	s.Update(b)
	return s.Finish(), nil
}
