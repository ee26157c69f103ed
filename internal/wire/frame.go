// Package wire implements the fixed-size frame codec that sits between
// the session protocol and the stream cipher: a 1024-byte plaintext
// frame (96-byte header + 928-byte body), little-endian throughout,
// marshalled explicitly with encoding/binary rather than relying on
// struct layout (spec.md §9 calls out hand-rolled memcpy packing as a
// pattern to retire).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the size of the fixed frame header.
	HeaderSize = 96
	// BodySize is the size of the fixed frame body.
	BodySize = 928
	// FrameSize is the total plaintext frame size on the wire.
	FrameSize = HeaderSize + BodySize // 1024
	// CipherFrameSize is the frame size after stream encryption
	// (FrameSize plus the 17-byte stream AEAD overhead).
	CipherFrameSize = FrameSize + 17 // 1041

	// TokenSize is the size of the authentication token field.
	TokenSize = 64

	// UsernameSize is the wire size of a username field.
	UsernameSize = 16
	// PasswordSize is the wire size of a pre-hash password field.
	PasswordSize = 16

	// MaxPlaintextBodySize is the largest plaintext payload that fits
	// in one frame body once stream AEAD overhead and block padding
	// are accounted for: floor((BodySize-17)/8)*8 = 904. No smaller
	// limit is configured anywhere in this client; message size is
	// bounded by this value alone.
	MaxPlaintextBodySize = ((BodySize - 17) / 8) * 8 // 904

	// MaxFileSize is the largest file accepted for transfer (20 MiB).
	MaxFileSize = 20 * 1024 * 1024
)

// Sentinel from/to values.
const (
	FromAnonymous uint32 = 0xffffffff
	FromServer    uint32 = 0x7fffffff
	ToServer      uint32 = 0x7ffffffe
)

// Flag values, spec.md §4.4.1.
const (
	FlagProceed              int32 = 0x00
	FlagLogIn                int32 = 0x04
	FlagLoggedIn             int32 = 0x05
	FlagRegister             int32 = 0x06
	FlagRegistered           int32 = 0x07
	FlagBroadcast            int32 = 0x08
	FlagError                int32 = 0x09
	FlagUnauthenticated      int32 = 0x0a
	FlagAccessDenied         int32 = 0x0b
	FlagFetchUsers          int32 = 0x0c
	FlagExchangeKeys        int32 = 0xa0
	FlagExchangeKeysDone    int32 = 0xb0
	FlagExchangeHeaders     int32 = 0xc0
	FlagExchangeHeadersDone int32 = 0xd0
	FlagShutdown            int32 = 0x7fffffff

	// File exchange flags (SPEC_FULL.md §4.4, supplementary: the
	// retrieved original_source/src/net.c declares but does not
	// implement netBeginFileExchange/netReplyToFileExchangeInvite, so
	// these are this client's own wire-flag allocation rather than a
	// byte-for-byte reproduction of an on-wire format — see DESIGN.md).
	// Bodies travel through the same per-peer stream cipher and
	// length-suffix padding as ordinary PROCEED conversation messages.
	FlagFileInvite int32 = 0xe0 // P↔P: size‖hash‖filename
	FlagFileAccept int32 = 0xe1 // P↔P: empty body
	FlagFileDeny   int32 = 0xe2 // P↔P: empty body
	FlagFileChunk  int32 = 0xe3 // P↔P: raw chunk bytes
)

var ErrMalformedFrame = errors.New("wire: malformed frame")

// Frame is the unmarshalled representation of one plaintext frame.
type Frame struct {
	Flag      int32
	Timestamp uint64
	Size      uint32 // valid prefix length of Body
	Index     uint32
	Count     uint32
	From      uint32
	To        uint32
	Token     [TokenSize]byte
	Body      [BodySize]byte
}

// Pack marshals f into a new FrameSize-byte little-endian buffer.
func Pack(f *Frame) []byte {
	buf := make([]byte, FrameSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], uint32(f.Flag))
	le.PutUint64(buf[4:12], f.Timestamp)
	le.PutUint32(buf[12:16], f.Size)
	le.PutUint32(buf[16:20], f.Index)
	le.PutUint32(buf[20:24], f.Count)
	le.PutUint32(buf[24:28], f.From)
	le.PutUint32(buf[28:32], f.To)
	copy(buf[32:32+TokenSize], f.Token[:])
	copy(buf[HeaderSize:], f.Body[:])
	return buf
}

// Unpack parses a FrameSize-byte little-endian buffer into a Frame.
func Unpack(buf []byte) (*Frame, error) {
	if len(buf) != FrameSize {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrMalformedFrame, len(buf), FrameSize)
	}
	le := binary.LittleEndian
	f := &Frame{
		Flag:      int32(le.Uint32(buf[0:4])),
		Timestamp: le.Uint64(buf[4:12]),
		Size:      le.Uint32(buf[12:16]),
		Index:     le.Uint32(buf[16:20]),
		Count:     le.Uint32(buf[20:24]),
		From:      le.Uint32(buf[24:28]),
		To:        le.Uint32(buf[28:32]),
	}
	copy(f.Token[:], buf[32:32+TokenSize])
	copy(f.Body[:], buf[HeaderSize:])
	if f.Size > BodySize {
		return nil, fmt.Errorf("%w: size field %d exceeds body capacity %d", ErrMalformedFrame, f.Size, BodySize)
	}
	return f, nil
}

// NewFrame builds a Frame with body set to the valid prefix of body
// (which must fit within BodySize), zero-filling the remainder.
func NewFrame(flag int32, timestampMillis uint64, from, to uint32, token [TokenSize]byte, body []byte, index, count uint32) (*Frame, error) {
	if len(body) > BodySize {
		return nil, fmt.Errorf("%w: body length %d exceeds %d", ErrMalformedFrame, len(body), BodySize)
	}
	f := &Frame{
		Flag:      flag,
		Timestamp: timestampMillis,
		Size:      uint32(len(body)),
		Index:     index,
		Count:     count,
		From:      from,
		To:        to,
		Token:     token,
	}
	copy(f.Body[:], body)
	return f, nil
}

// ValidBody returns the Size-length prefix of the frame body.
func (f *Frame) ValidBody() []byte {
	return f.Body[:f.Size]
}
