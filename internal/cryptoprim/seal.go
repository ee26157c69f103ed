package cryptoprim

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrOpenFailed is returned by Open when the blob does not authenticate
// under the given key — wrong key, or the blob has been tampered with.
var ErrOpenFailed = errors.New("cryptoprim: seal: open failed")

// Seal encrypts plaintext under key for storage or one-shot transport,
// returning mac‖ciphertext‖nonce as specified: a fresh random nonce is
// generated per call, so the same plaintext sealed twice yields
// different output.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoprim: seal: generate nonce: %w", err)
	}
	// Seal() appends the 16-byte Poly1305 tag at the front of its output
	// is not how the stdlib AEAD works; it appends the tag to the end of
	// the ciphertext. Rearrange into mac‖ciphertext‖nonce as specified.
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	macSize := aead.Overhead() // 16
	mac := sealed[len(sealed)-macSize:]
	ciphertext := sealed[:len(sealed)-macSize]

	out := make([]byte, 0, len(mac)+len(ciphertext)+len(nonce))
	out = append(out, mac...)
	out = append(out, ciphertext...)
	out = append(out, nonce...)
	return out, nil
}

// Open decrypts a blob produced by Seal. Returns ErrOpenFailed if the
// blob does not authenticate under key.
func Open(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprim: open: %w", err)
	}
	macSize := aead.Overhead()
	nonceSize := aead.NonceSize()
	if len(blob) < macSize+nonceSize {
		return nil, ErrOpenFailed
	}

	mac := blob[:macSize]
	nonce := blob[len(blob)-nonceSize:]
	ciphertext := blob[macSize : len(blob)-nonceSize]

	sealed := make([]byte, 0, len(ciphertext)+len(mac))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, mac...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}
