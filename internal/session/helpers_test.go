package session

import (
	"bytes"
	"crypto/ed25519"
	"net"
	"testing"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/store"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// serverSide performs the server's half of the client↔server handshake
// (spec.md §4.4.2) directly against raw primitives: this repo never
// implements the server, so tests stand one up by hand over a
// net.Pipe, the way the client's own handshake.go expects it to
// behave.
func serverSide(t *testing.T, nc net.Conn, signPriv ed25519.PrivateKey) *conn {
	t.Helper()

	ours, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}
	sig := ed25519.Sign(signPriv, ours.Public)
	if _, err := nc.Write(append(append([]byte{}, sig...), ours.Public...)); err != nil {
		t.Fatalf("server write pub: %v", err)
	}

	clientPub := make([]byte, cryptoprim.KeySize)
	if _, err := readFull(nc, clientPub); err != nil {
		t.Fatalf("server read client pub: %v", err)
	}

	keys, err := cryptoprim.DeriveSessionKeysAsServer(ours.Private, clientPub)
	if err != nil {
		t.Fatalf("server derive keys: %v", err)
	}

	tx, header, err := cryptoprim.StreamInitPush(keys.Tx)
	if err != nil {
		t.Fatalf("server stream init push: %v", err)
	}
	headerSig := ed25519.Sign(signPriv, header)
	if _, err := nc.Write(append(append([]byte{}, headerSig...), header...)); err != nil {
		t.Fatalf("server write header: %v", err)
	}

	clientHeader := make([]byte, cryptoprim.HeaderSize)
	if _, err := readFull(nc, clientHeader); err != nil {
		t.Fatalf("server read client header: %v", err)
	}
	rx, err := cryptoprim.StreamInitPull(keys.Rx, clientHeader)
	if err != nil {
		t.Fatalf("server stream init pull: %v", err)
	}

	return &conn{nc: nc, tx: tx, rx: rx}
}

func readFull(nc net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := nc.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// pairedSessions returns a client Session with a live handshaked
// connection, plus the raw server-side conn used to drive it in tests
// and the server's signing key, for minting server-origin tokens.
func pairedSessions(t *testing.T) (*Session, *conn, ed25519.PrivateKey) {
	t.Helper()
	signPub, signPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate server signing key: %v", err)
	}

	clientConn, serverConn := net.Pipe()
	serverDone := make(chan *conn, 1)
	go func() { serverDone <- serverSide(t, serverConn, signPriv) }()

	c, _, err := ClientHandshake(clientConn, signPub)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	sc := <-serverDone

	st := openTestStore(t)
	s := New(signPub, st, Callbacks{})
	s.c = c
	s.auth.setState(Unauthenticated)
	return s, sc, signPriv
}

// serverOriginToken signs the all-ones server-origin marker with signPriv,
// the token a genuine server-origin frame carries.
func serverOriginToken(signPriv ed25519.PrivateKey) [wire.TokenSize]byte {
	var token [wire.TokenSize]byte
	copy(token[:], ed25519.Sign(signPriv, bytes.Repeat([]byte{0xff}, 8)))
	return token
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir()+"/test.db", []byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func tokenOf(s *Session) [wire.TokenSize]byte {
	_, token, _ := s.State()
	return token
}

// reciprocalStreams returns a pair of stream-state pairs such that
// aPush decrypts under bPull and bPush decrypts under aPull, the way
// two ends of an established conversation do.
func reciprocalStreams(t *testing.T) (a, b *store.ConversationState) {
	t.Helper()
	key := make([]byte, cryptoprim.KeySize)
	aPush, header, err := cryptoprim.StreamInitPush(key)
	if err != nil {
		t.Fatalf("stream init push: %v", err)
	}
	bPull, err := cryptoprim.StreamInitPull(key, header)
	if err != nil {
		t.Fatalf("stream init pull: %v", err)
	}

	key2 := make([]byte, cryptoprim.KeySize)
	key2[0] = 1
	bPush, header2, err := cryptoprim.StreamInitPush(key2)
	if err != nil {
		t.Fatalf("stream init push: %v", err)
	}
	aPull, err := cryptoprim.StreamInitPull(key2, header2)
	if err != nil {
		t.Fatalf("stream init pull: %v", err)
	}

	return &store.ConversationState{Push: aPush, Pull: aPull}, &store.ConversationState{Push: bPush, Pull: bPull}
}

func unpad(t *testing.T, padded []byte) ([]byte, error) {
	t.Helper()
	return cryptoprim.Unpad(padded)
}

// fixedFrame builds a FlagProceed frame from peerID, encrypted with
// peerStreams.Push, the way a real peer's SendMessage would.
func fixedFrame(t *testing.T, peerStreams *store.ConversationState, peerID uint32, text string) (*wire.Frame, error) {
	t.Helper()
	padded := cryptoprim.Pad([]byte(text), 8)
	ciphertext, err := peerStreams.Push.Push(padded)
	if err != nil {
		return nil, err
	}
	return wire.NewFrame(wire.FlagProceed, 1, peerID, 0, wire.AnonymousToken, ciphertext, 0, 1)
}

func zeroStream(t *testing.T) *cryptoprim.StreamState {
	t.Helper()
	key := make([]byte, cryptoprim.KeySize)
	s, _, err := cryptoprim.StreamInitPush(key)
	if err != nil {
		t.Fatalf("stream init push: %v", err)
	}
	return s
}

func fetchUsersFrame(t *testing.T, s *Session) *wire.Frame {
	t.Helper()
	body := []byte("hello")
	f, err := wire.NewFrame(wire.FlagFetchUsers, 1, wire.FromServer, 0, wire.AnonymousToken, body, 0, 1)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	return f
}
