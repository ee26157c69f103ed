package session

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// File exchange rides on the dedicated wire.FlagFileInvite/Accept/Deny/
// Chunk flags through the same per-peer stream cipher conversation
// messages use (spec.md §4.4.7). See wire.FlagFileInvite's doc comment
// for why this client allocates its own flags rather than following an
// on-wire precedent from original_source (none survived retrieval).
const fileExchangeTimeout = 5 * time.Second

// fileExchange tracks the one peer, if any, a file exchange is
// currently blocked reading the socket directly for. Only one file
// exchange is active at a time, matching the single-consumer async
// worker model (spec.md §5).
type fileExchange struct {
	mu   sync.Mutex
	peer uint32 // 0 = none active
}

func (s *Session) beginFileExchange(peer uint32) error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	if s.file.peer != 0 {
		return ErrSetupInProgress
	}
	s.file.peer = peer
	return nil
}

func (s *Session) endFileExchange() {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	s.file.peer = 0
}

// FileInvite describes an incoming file exchange offer.
type FileInvite struct {
	FromID   uint32
	Size     uint32
	Hash     [32]byte
	Filename string
}

// ChunkSource supplies the next chunk of file data to transmit. It
// returns 0 bytes and a nil error when there is no more data.
type ChunkSource func(index uint32) ([]byte, error)

// BeginFileExchange sends a file invite to peerID and, on acceptance,
// pumps chunks supplied by next until it reports no more data. It
// blocks until the transfer completes, is declined, or times out.
func (s *Session) BeginFileExchange(peerID uint32, size uint32, hash [32]byte, filename string, next ChunkSource) error {
	if size > wire.MaxFileSize {
		return ErrFileTooLarge
	}
	if err := s.beginFileExchange(peerID); err != nil {
		return err
	}
	defer s.endFileExchange()

	if err := s.sendFilePlaintext(peerID, wire.FlagFileInvite, inviteBody(size, hash, filename)); err != nil {
		return err
	}

	reply, err := s.waitFileFrame(peerID, wire.FlagFileAccept, wire.FlagFileDeny)
	if err != nil {
		return err
	}
	if reply.Flag == wire.FlagFileDeny {
		return ErrFileExchangeDenied
	}

	for index := uint32(0); ; index++ {
		chunk, err := next(index)
		if err != nil {
			return wrap(KindUser, "read file chunk", err)
		}
		if len(chunk) == 0 {
			return nil
		}
		if err := s.sendFilePlaintext(peerID, wire.FlagFileChunk, chunk); err != nil {
			return err
		}
	}
}

// ReceiveFileExchange accepts an invite already delivered via
// Callbacks.OnFileInvite and blocks, delivering each decrypted chunk
// through Callbacks.OnFileChunk, until totalSize bytes have arrived or
// a chunk fails to decrypt or arrives out of order — any of which the
// caller treats as spec.md §4.4.7's "mismatch, truncation, or any
// decryption failure" and deletes the partial file.
func (s *Session) ReceiveFileExchange(fromID uint32, totalSize uint32) error {
	if err := s.beginFileExchange(fromID); err != nil {
		return err
	}
	defer s.endFileExchange()

	if err := s.sendFilePlaintext(fromID, wire.FlagFileAccept, nil); err != nil {
		return err
	}

	var received uint32
	index := uint32(0)
	for received < totalSize {
		frame, err := s.waitFileFrame(fromID, wire.FlagFileChunk)
		if err != nil {
			return err
		}
		plaintext, err := s.decodeFilePlaintext(frame)
		if err != nil {
			return err
		}
		if s.callbacks.OnFileChunk != nil {
			s.callbacks.OnFileChunk(fromID, index, plaintext)
		}
		received += uint32(len(plaintext))
		index++
	}
	if received != totalSize {
		return wrap(KindCrypto, "file exchange", fmt.Errorf("received %d bytes, want %d", received, totalSize))
	}
	return nil
}

// DeclineFileExchange sends a denial for an invite delivered via
// Callbacks.OnFileInvite.
func (s *Session) DeclineFileExchange(fromID uint32) error {
	return s.sendFilePlaintext(fromID, wire.FlagFileDeny, nil)
}

func inviteBody(size uint32, hash [32]byte, filename string) []byte {
	body := make([]byte, 4+32+2+len(filename))
	binary.LittleEndian.PutUint32(body[0:4], size)
	copy(body[4:36], hash[:])
	binary.LittleEndian.PutUint16(body[36:38], uint16(len(filename)))
	copy(body[38:], filename)
	return body
}

// parseInvite decodes a decrypted invite body into a FileInvite.
func parseInvite(fromID uint32, body []byte) (*FileInvite, error) {
	if len(body) < 38 {
		return nil, fmt.Errorf("invite body too short: %d", len(body))
	}
	size := binary.LittleEndian.Uint32(body[0:4])
	var hash [32]byte
	copy(hash[:], body[4:36])
	nameLen := int(binary.LittleEndian.Uint16(body[36:38]))
	if len(body) < 38+nameLen {
		return nil, fmt.Errorf("invite filename truncated")
	}
	return &FileInvite{FromID: fromID, Size: size, Hash: hash, Filename: string(body[38 : 38+nameLen])}, nil
}

// sendFilePlaintext pads, stream-encrypts, and sends plaintext to
// peerID under the given file-exchange flag.
func (s *Session) sendFilePlaintext(peerID uint32, flag int32, plaintext []byte) error {
	_, token, selfID := s.auth.get()
	padded := cryptoprim.Pad(plaintext, 8)

	cs, err := s.store.LoadConversation(peerID)
	if err != nil {
		return wrap(KindStore, "load conversation", err)
	}
	ciphertext, err := cs.Push.Push(padded)
	if err != nil {
		return wrap(KindCrypto, "stream encrypt file frame", err)
	}
	if err := s.store.SaveConversation(cs); err != nil {
		return wrap(KindStore, "persist advanced push state", err)
	}

	f, err := wire.NewFrame(flag, s.now(), selfID, peerID, token, ciphertext, 0, 1)
	if err != nil {
		return wrap(KindProtocol, "build file frame", err)
	}
	return s.c.send(f)
}

// waitFileFrame blocks reading the socket directly, the same
// sole-reader role waitSetupFrame claims for conversation setup, until
// a frame with one of wantFlags arrives from peer or
// fileExchangeTimeout elapses.
func (s *Session) waitFileFrame(peer uint32, wantFlags ...int32) (*wire.Frame, error) {
	deadline := time.Now().Add(fileExchangeTimeout)
	return s.readUntil(deadline, func(f *wire.Frame) bool {
		if f.From != peer {
			return false
		}
		for _, want := range wantFlags {
			if f.Flag == want {
				return true
			}
		}
		return false
	})
}

// decodeFilePlaintext unseals a file-exchange frame's stream-encrypted,
// padded body.
func (s *Session) decodeFilePlaintext(f *wire.Frame) ([]byte, error) {
	cs, err := s.store.LoadConversation(f.From)
	if err != nil {
		return nil, wrap(KindStore, "load conversation", err)
	}
	padded, err := cs.Pull.Pull(f.ValidBody())
	if err != nil {
		return nil, wrap(KindCrypto, "stream decrypt file frame", err)
	}
	if err := s.store.SaveConversation(cs); err != nil {
		return nil, wrap(KindStore, "persist advanced pull state", err)
	}
	plain, err := cryptoprim.Unpad(padded)
	if err != nil {
		return nil, wrap(KindCrypto, "unpad file frame", err)
	}
	return plain, nil
}
