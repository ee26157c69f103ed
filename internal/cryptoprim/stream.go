package cryptoprim

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// HeaderSize is the size of a stream header exchanged once at
// stream setup (base IV only; the reserved tail is for layout symmetry
// with the 52-byte state, not consumed by either side).
const HeaderSize = 24

// StateSize is the size of one direction's stream state: a 32-byte key,
// a 16-byte base IV established at init, and a 4-byte message counter.
const StateSize = KeySize + 16 + 4

const (
	baseIVSize  = 16
	counterSize = 4
)

// tag is prepended to the plaintext before sealing, the way libsodium's
// secretstream distinguishes an ordinary message from the final one in
// a sequence. Only tagMessage is used by the conversation and file
// transfer protocols in this client; tagFinal is reserved for framing
// symmetry with the construction this reproduces.
type tag byte

const (
	tagMessage tag = 0
	tagFinal   tag = 3
)

var (
	// ErrStreamDecrypt is returned by StreamPull on any authentication
	// failure: wrong key, out-of-order frame, replay, or corruption.
	// Per spec.md §7 this is never retried.
	ErrStreamDecrypt = errors.New("cryptoprim: stream decryption failed")
)

// StreamState is one direction (push or pull) of a ratcheting AEAD
// stream. Each Push/Pull call advances the counter in place; an
// out-of-order or replayed ciphertext will fail to authenticate against
// the state's current counter, which is the ratchet property the
// session protocol's ordering invariants (spec.md §5) depend on.
type StreamState struct {
	key     [KeySize]byte
	baseIV  [baseIVSize]byte
	counter uint32
}

// StreamInitPush creates a fresh encryption stream state under key and
// returns it along with the 24-byte header the peer needs to
// initialize the matching pull state.
func StreamInitPush(key []byte) (*StreamState, []byte, error) {
	if len(key) != KeySize {
		return nil, nil, fmt.Errorf("cryptoprim: stream key must be %d bytes", KeySize)
	}
	s := &StreamState{}
	copy(s.key[:], key)
	if _, err := rand.Read(s.baseIV[:]); err != nil {
		return nil, nil, fmt.Errorf("cryptoprim: generate stream IV: %w", err)
	}
	header := make([]byte, HeaderSize)
	copy(header, s.baseIV[:])
	return s, header, nil
}

// StreamInitPull creates a decryption stream state under key, seeded
// from a header received from the peer (as produced by StreamInitPush).
func StreamInitPull(key, header []byte) (*StreamState, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptoprim: stream key must be %d bytes", KeySize)
	}
	if len(header) != HeaderSize {
		return nil, fmt.Errorf("cryptoprim: stream header must be %d bytes", HeaderSize)
	}
	s := &StreamState{}
	copy(s.key[:], key)
	copy(s.baseIV[:], header[:baseIVSize])
	return s, nil
}

// Export serializes the state to its 52-byte wire/storage form
// (key ‖ baseIV ‖ counter), per spec.md's per-direction state layout.
func (s *StreamState) Export() []byte {
	out := make([]byte, StateSize)
	copy(out, s.key[:])
	copy(out[KeySize:], s.baseIV[:])
	binary.LittleEndian.PutUint32(out[KeySize+baseIVSize:], s.counter)
	return out
}

// ImportStreamState reconstructs a state from its 52-byte exported form.
func ImportStreamState(b []byte) (*StreamState, error) {
	if len(b) != StateSize {
		return nil, fmt.Errorf("cryptoprim: stream state must be %d bytes, got %d", StateSize, len(b))
	}
	s := &StreamState{}
	copy(s.key[:], b[:KeySize])
	copy(s.baseIV[:], b[KeySize:KeySize+baseIVSize])
	s.counter = binary.LittleEndian.Uint32(b[KeySize+baseIVSize:])
	return s, nil
}

func (s *StreamState) nonce() []byte {
	n := make([]byte, chacha20poly1305.NonceSizeX) // 24 bytes
	copy(n, s.baseIV[:])
	binary.BigEndian.PutUint32(n[baseIVSize:], s.counter)
	return n
}

func (s *StreamState) aead() (cipher.AEAD, error) {
	aead, err := chacha20poly1305.NewX(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: stream AEAD init: %w", err)
	}
	return aead, nil
}

// Push encrypts plaintext and advances the state's counter. The
// returned ciphertext is exactly len(plaintext)+17 bytes: a 1-byte
// message tag plus a 16-byte Poly1305 authentication tag.
func (s *StreamState) Push(plaintext []byte) ([]byte, error) {
	return s.push(plaintext, tagMessage)
}

// PushFinal is identical to Push but marks the message as the last in
// the stream, mirroring libsodium's TAG_FINAL. Unused by the current
// protocol but kept for parity with the construction it reproduces.
func (s *StreamState) PushFinal(plaintext []byte) ([]byte, error) {
	return s.push(plaintext, tagFinal)
}

func (s *StreamState) push(plaintext []byte, t tag) ([]byte, error) {
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	tagged := make([]byte, 1+len(plaintext))
	tagged[0] = byte(t)
	copy(tagged[1:], plaintext)
	ciphertext := aead.Seal(nil, s.nonce(), tagged, nil)
	s.counter++
	return ciphertext, nil
}

// Pull decrypts ciphertext and advances the state's counter. Any
// authentication failure — including one caused by a frame arriving
// out of order — returns ErrStreamDecrypt and leaves the counter
// advanced, since a failed decryption still consumed this position in
// the sequence and must not be retried at the same counter value.
func (s *StreamState) Pull(ciphertext []byte) ([]byte, error) {
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}
	defer func() { s.counter++ }()

	if len(ciphertext) < 1 {
		return nil, ErrStreamDecrypt
	}
	tagged, err := aead.Open(nil, s.nonce(), ciphertext, nil)
	if err != nil {
		return nil, ErrStreamDecrypt
	}
	if len(tagged) < 1 {
		return nil, ErrStreamDecrypt
	}
	return tagged[1:], nil
}
