// Package cryptoprim implements the cryptographic primitives the
// client↔server and peer↔peer protocols are built on: a pinned-key
// signed handshake, X25519 key agreement with role-sensitive session
// key derivation, a ratcheting AEAD stream cipher, one-shot sealing for
// data at rest, Blake2b hashing and password-keying, and length-suffix
// padding.
//
// Nothing here talks to the network or the store; it only transforms
// bytes. See internal/session for the protocol that drives it and
// internal/store for how sealed blobs are persisted.
package cryptoprim

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SignatureSize is the size of a detached ed25519 signature.
const SignatureSize = ed25519.SignatureSize // 64

// KeySize is the size of an X25519 public or private key, and of a
// derived session key.
const KeySize = 32

var ErrInvalidSignature = errors.New("cryptoprim: signature verification failed")

// SignVerify reports whether signature is a valid detached ed25519
// signature over message under the given pinned public key. It never
// returns an error for a bad signature — a bad signature is simply
// "false", since the caller (the session handshake) treats any failure
// here as adversarial behavior, never as a retryable condition.
func SignVerify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// CheckServerSigned verifies a signature produced over the all-ones
// 8-byte marker used by server-origin tokens (see internal/wire). The
// signed bytes are fixed and public; only the signature differs per
// token, which is why this takes just the signature and the pinned key.
func CheckServerSigned(serverSignPublicKey ed25519.PublicKey, marker, signature []byte) bool {
	return SignVerify(serverSignPublicKey, marker, signature)
}

// KeyPair is an ephemeral X25519 key pair used for one connection or
// one peer-conversation setup.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Public  []byte // 32 bytes
}

// GenerateKeyPair creates a fresh ephemeral X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: generate keypair: %w", err)
	}
	return &KeyPair{Private: priv, Public: priv.PublicKey().Bytes()}, nil
}

// SessionKeys holds the two derived symmetric keys for one connection:
// Rx for decrypting inbound data, Tx for encrypting outbound data.
type SessionKeys struct {
	Rx []byte
	Tx []byte
}

// kxInfo distinguishes the two HKDF outputs; "client->server" transcript
// order matches the direction the bytes were requested in, mirroring
// libsodium's crypto_kx construction where client.tx == server.rx.
const (
	kxInfoClientToServer = "exchatge-kx-c2s"
	kxInfoServerToClient = "exchatge-kx-s2c"
)

// DeriveSessionKeysAsClient derives (rx, tx) for the client role: the
// client's rx key equals the server's tx key and vice versa. ourPriv
// is the client's ephemeral private key, theirPub the peer's public key.
func DeriveSessionKeysAsClient(ourPriv *ecdh.PrivateKey, theirPub []byte) (SessionKeys, error) {
	shared, err := ecdhShared(ourPriv, theirPub)
	if err != nil {
		return SessionKeys{}, err
	}
	c2s, err := hkdfExpand(shared, kxInfoClientToServer)
	if err != nil {
		return SessionKeys{}, err
	}
	s2c, err := hkdfExpand(shared, kxInfoServerToClient)
	if err != nil {
		return SessionKeys{}, err
	}
	// The client transmits on the c2s stream and receives on the s2c stream.
	return SessionKeys{Rx: s2c, Tx: c2s}, nil
}

// DeriveSessionKeysAsServer derives (rx, tx) for the server role —
// the symmetric counterpart of DeriveSessionKeysAsClient. The roles
// must not be "fixed" by swapping which side calls which function:
// whichever side is playing client must call the client variant.
func DeriveSessionKeysAsServer(ourPriv *ecdh.PrivateKey, theirPub []byte) (SessionKeys, error) {
	shared, err := ecdhShared(ourPriv, theirPub)
	if err != nil {
		return SessionKeys{}, err
	}
	c2s, err := hkdfExpand(shared, kxInfoClientToServer)
	if err != nil {
		return SessionKeys{}, err
	}
	s2c, err := hkdfExpand(shared, kxInfoServerToClient)
	if err != nil {
		return SessionKeys{}, err
	}
	// The server receives on the c2s stream and transmits on the s2c stream.
	return SessionKeys{Rx: c2s, Tx: s2c}, nil
}

func ecdhShared(ourPriv *ecdh.PrivateKey, theirPubBytes []byte) ([]byte, error) {
	theirPub, err := ecdh.X25519().NewPublicKey(theirPubBytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: invalid peer public key: %w", err)
	}
	shared, err := ourPriv.ECDH(theirPub)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: ECDH failed: %w", err)
	}
	return shared, nil
}

func hkdfExpand(shared []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, shared, nil, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cryptoprim: HKDF expand: %w", err)
	}
	return key, nil
}
