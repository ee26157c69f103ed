package session

import (
	"bytes"
	"crypto/ed25519"
	"io"
	"net"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
)

// handshakeState names the strictly sequential steps of the
// client↔server handshake (spec.md §4.4.2). Failure at any step tears
// down the partial connection; there is no resumption.
type handshakeState int

const (
	handshakeServerPublicKeyReceived handshakeState = iota + 1
	handshakeClientPublicKeySent
	handshakeServerCoderHeaderReceived
	handshakeClientCoderHeaderSent
)

// ClientHandshake performs the blocking signed handshake over an
// already-dialed TCP connection and returns the encrypted framed
// connection it establishes. The handshake itself is unframed: it
// moves raw signature/key/header bytes before any wire.Frame exists.
func ClientHandshake(nc net.Conn, serverSignPublicKey ed25519.PublicKey) (*conn, handshakeState, error) {
	// Step 2: read signature(64) || server ephemeral public key(32).
	buf := make([]byte, cryptoprim.SignatureSize+cryptoprim.KeySize)
	if _, err := io.ReadFull(nc, buf); err != nil {
		return nil, 0, wrap(KindTransport, "read server public key", err)
	}
	sig, serverEphPub := buf[:cryptoprim.SignatureSize], buf[cryptoprim.SignatureSize:]

	if bytes.Equal(serverEphPub, make([]byte, cryptoprim.KeySize)) {
		// All-zero key: treat as denial-of-service, never as a retryable
		// transport hiccup.
		return nil, 0, wrap(KindCrypto, "server public key", errAllZeroKey)
	}
	if !cryptoprim.SignVerify(serverSignPublicKey, serverEphPub, sig) {
		return nil, 0, wrap(KindCrypto, "verify server public key signature", cryptoprim.ErrInvalidSignature)
	}
	state := handshakeServerPublicKeyReceived

	// Step 3: generate our ephemeral keypair and derive client-role keys.
	ours, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		return nil, 0, wrap(KindCrypto, "generate ephemeral keypair", err)
	}
	keys, err := cryptoprim.DeriveSessionKeysAsClient(ours.Private, serverEphPub)
	if err != nil {
		return nil, 0, wrap(KindCrypto, "derive session keys", err)
	}

	// Step 4: send our public key.
	if _, err := nc.Write(ours.Public); err != nil {
		return nil, 0, wrap(KindTransport, "send client public key", err)
	}
	state = handshakeClientPublicKeySent

	// Step 5: read signature(64) || server stream header(24).
	headerBuf := make([]byte, cryptoprim.SignatureSize+cryptoprim.HeaderSize)
	if _, err := io.ReadFull(nc, headerBuf); err != nil {
		return nil, 0, wrap(KindTransport, "read server stream header", err)
	}
	headerSig, serverHeader := headerBuf[:cryptoprim.SignatureSize], headerBuf[cryptoprim.SignatureSize:]
	if !cryptoprim.SignVerify(serverSignPublicKey, serverHeader, headerSig) {
		return nil, 0, wrap(KindCrypto, "verify server stream header signature", cryptoprim.ErrInvalidSignature)
	}
	rx, err := cryptoprim.StreamInitPull(keys.Rx, serverHeader)
	if err != nil {
		return nil, 0, wrap(KindCrypto, "init decryption stream", err)
	}
	state = handshakeServerCoderHeaderReceived

	// Step 6: initialize our encryption stream and send our header.
	tx, ourHeader, err := cryptoprim.StreamInitPush(keys.Tx)
	if err != nil {
		return nil, 0, wrap(KindCrypto, "init encryption stream", err)
	}
	if _, err := nc.Write(ourHeader); err != nil {
		return nil, 0, wrap(KindTransport, "send client stream header", err)
	}
	state = handshakeClientCoderHeaderSent

	return &conn{nc: nc, tx: tx, rx: rx}, state, nil
}

var errAllZeroKey = errAllZero{}

type errAllZero struct{}

func (errAllZero) Error() string { return "server ephemeral public key is all-zero" }
