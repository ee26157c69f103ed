package session

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// conn is the encrypted framed connection underlying a Session: every
// Send/Recv moves exactly one CipherFrameSize-byte ciphertext frame
// across the socket, stream-encrypted/decrypted through tx/rx.
//
// Outbound frames are serialized by mu (spec.md §5: "acquire → set
// last_sent_flag → send → release"), since the stream cipher forbids
// interleaved pushes from different goroutines. Inbound reads have no
// lock: the network poll goroutine is the sole reader, which is what
// preserves decryption order.
type conn struct {
	nc net.Conn

	mu           sync.Mutex
	tx           *cryptoprim.StreamState
	lastSentFlag int32

	rx *cryptoprim.StreamState
}

// send marshals f, stream-encrypts it, and writes exactly
// wire.CipherFrameSize bytes.
func (c *conn) send(f *wire.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	plain := wire.Pack(f)
	ciphertext, err := c.tx.Push(plain)
	if err != nil {
		return wrap(KindCrypto, "stream encrypt frame", err)
	}
	if len(ciphertext) != wire.CipherFrameSize {
		return wrap(KindProtocol, "send", fmt.Errorf("encrypted frame length %d, want %d", len(ciphertext), wire.CipherFrameSize))
	}
	if _, err := c.nc.Write(ciphertext); err != nil {
		return wrap(KindTransport, "write frame", err)
	}
	c.lastSentFlag = f.Flag
	return nil
}

// recv reads exactly wire.CipherFrameSize bytes, stream-decrypts, and
// unmarshals. Only one goroutine may call this at a time: ordinarily
// the network poll goroutine, or a blocking setup/file-exchange call
// that has claimed the reader role via beginSetup/beginFileExchange
// for its duration (spec.md §5).
func (c *conn) recv() (*wire.Frame, error) {
	buf := make([]byte, wire.CipherFrameSize)
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		return nil, wrap(KindTransport, "read frame", err)
	}
	plain, err := c.rx.Pull(buf)
	if err != nil {
		return nil, wrap(KindCrypto, "stream decrypt frame", err)
	}
	f, err := wire.Unpack(plain)
	if err != nil {
		return nil, wrap(KindProtocol, "unpack frame", err)
	}
	return f, nil
}

func (c *conn) close() error {
	return c.nc.Close()
}

// setReadDeadline and clearReadDeadline let the orchestrator's network
// poll loop check for a readable frame without blocking indefinitely,
// the Go equivalent of original_source/src/net.c's checkSocket()
// zero-timeout SDLNet_CheckSockets call.
func (c *conn) setReadDeadline(d time.Duration) error {
	return c.nc.SetReadDeadline(time.Now().Add(d))
}

func (c *conn) clearReadDeadline() error {
	return c.nc.SetReadDeadline(time.Time{})
}
