package session

import (
	"sync"

	"github.com/shurlinet/exchatge-client/internal/wire"
)

// AuthState is the client's authentication state (spec.md §4.4.3).
type AuthState int

const (
	Unauthenticated AuthState = iota
	AwaitingAuthentication
	Authenticated
	ExchangingMessages
	FinishedWithError
)

func (s AuthState) String() string {
	switch s {
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case AwaitingAuthentication:
		return "AWAITING_AUTHENTICATION"
	case Authenticated:
		return "AUTHENTICATED"
	case ExchangingMessages:
		return "EXCHANGING_MESSAGES"
	case FinishedWithError:
		return "FINISHED_WITH_ERROR"
	default:
		return "UNKNOWN"
	}
}

// authBox guards the fields that change as frames arrive: the state
// itself, the session token captured from LOGGED_IN, and the user id
// the server assigned us (delivered in that frame's `to` field).
type authBox struct {
	mu    sync.RWMutex
	state AuthState
	token [wire.TokenSize]byte
	id    uint32
}

func (b *authBox) get() (AuthState, [wire.TokenSize]byte, uint32) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state, b.token, b.id
}

func (b *authBox) setState(s AuthState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *authBox) setAuthenticated(token [wire.TokenSize]byte, id uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Authenticated
	b.token = token
	b.id = id
}

func (b *authBox) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Unauthenticated
	b.token = wire.AnonymousToken
	b.id = 0
}
