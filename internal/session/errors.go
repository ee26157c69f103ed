// Package session implements the client side of the wire protocol built
// on internal/wire and internal/cryptoprim: the client↔server signed
// handshake, the authentication state machine, server dispatch, the
// peer-to-peer conversation setup handshake, message send/receive, and
// file exchange. It never touches a GUI or CLI surface directly —
// callers drive it through Session's methods and receive results via
// the Callbacks it was constructed with, the same inversion the
// original C client used (see original_source/src/net.h's typedef'd
// function pointers, reproduced here as Go function fields instead of
// raw void* callbacks per spec.md §9's call to retire that pattern).
package session

import "errors"

// Kind classifies an error the way spec.md §7 does, so callers can
// apply the documented policy per kind without string-matching.
type Kind int

const (
	KindTransport Kind = iota + 1
	KindCrypto
	KindProtocol
	KindStore
	KindTimeout
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindCrypto:
		return "crypto"
	case KindProtocol:
		return "protocol"
	case KindStore:
		return "store"
	case KindTimeout:
		return "timeout"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the Kind that determines how
// the caller must react (spec.md §7): never retried, always surfaced.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Op
	}
	return e.Kind.String() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

var (
	// ErrNotAuthenticated is returned by operations that require an
	// AUTHENTICATED or later state.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	// ErrSetupInProgress is returned when a peer conversation setup is
	// requested while settingUpConversation is already held.
	ErrSetupInProgress = errors.New("session: conversation setup already in progress")

	// ErrConversationDenied is returned when a peer declines an
	// EXCHANGE_KEYS invite.
	ErrConversationDenied = errors.New("session: conversation invite denied")

	// ErrFileExchangeDenied is returned when a peer declines a file
	// transfer invite.
	ErrFileExchangeDenied = errors.New("session: file exchange invite denied")

	// ErrFileTooLarge is returned before a file transfer begins if the
	// file exceeds wire.MaxFileSize.
	ErrFileTooLarge = errors.New("session: file exceeds maximum size")
)
