package wire

import (
	"crypto/ed25519"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
)

// serverOriginMarker is the fixed all-ones 8-byte message a server-
// origin token's trailing signature is computed over (spec.md §3).
var serverOriginMarker = [8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// AnonymousToken is the all-zero sentinel used before authentication.
var AnonymousToken = [TokenSize]byte{}

// IsAnonymousToken reports whether token is the all-zero sentinel.
func IsAnonymousToken(token [TokenSize]byte) bool {
	return token == AnonymousToken
}

// IsServerOriginToken reports whether token verifies as a detached
// ed25519 signature over serverOriginMarker under the pinned server
// signing key. Messages whose From field equals FromServer must carry
// such a token.
//
// Resolution of an internal inconsistency in the token format: a
// detached ed25519 signature is 64 bytes (cryptoprim.SignatureSize),
// which does not fit in the "trailing 16 bytes" described informally
// alongside the token; since the token field itself is exactly 64
// bytes wide, the full token is treated as the signature for this
// check.
func IsServerOriginToken(serverSignPublicKey ed25519.PublicKey, token [TokenSize]byte) bool {
	return cryptoprim.CheckServerSigned(serverSignPublicKey, serverOriginMarker[:], token[:])
}

// VerifyInbound applies spec.md's inbound-token policy: server-origin
// frames must carry a verifying token; all other frames' tokens are
// ignored (authentication for those happens at the session layer via
// the session token).
func VerifyInbound(serverSignPublicKey ed25519.PublicKey, f *Frame) bool {
	if f.From != FromServer {
		return true
	}
	return IsServerOriginToken(serverSignPublicKey, f.Token)
}
