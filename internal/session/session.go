package session

import (
	"crypto/ed25519"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/shurlinet/exchatge-client/internal/store"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// Callbacks delivers protocol results to the caller (the orchestrator,
// C5). Every field is optional; a nil callback is simply not invoked.
// This plays the role original_source/src/net.h's NetOn* function
// pointers played, expressed as ordinary Go funcs instead of void*
// callbacks (spec.md §9).
type Callbacks struct {
	OnLoggedIn           func(userID uint32)
	OnLoginFailed        func()
	OnRegistered         func(success bool)
	OnError              func(flag int32)
	OnDisconnected       func()
	OnUsersFetched       func(users []*wire.UserInfo)
	OnMessage            func(fromID uint32, timestamp uint64, text []byte)
	OnBroadcast          func(text []byte)
	OnConversationInvite func(fromID uint32)
	OnFileInvite         func(fromID uint32, size uint32, hash [32]byte, filename string)
	OnFileChunk          func(fromID uint32, index uint32, data []byte)
}

// Session is the client-side protocol engine: one active connection to
// the server, the authentication state machine, and the bookkeeping
// needed for peer conversation setup, message exchange, and file
// transfer. Session owns no goroutines of its own — the orchestrator
// (internal/orchestrator) drives PollOnce() from its network poll loop;
// every other method runs on the goroutine of whoever calls it.
type Session struct {
	serverSignPublicKey ed25519.PublicKey
	store               *store.Store
	callbacks           Callbacks

	c *conn

	auth authBox

	settingUpMu sync.Mutex
	settingUp   bool
	setupPeer   uint32

	file fileExchange

	ignoreUsualMu sync.Mutex
	ignoreUsual   bool

	usersMu   sync.Mutex
	usersBody []byte // accumulator across FETCH_USERS parts

	now func() uint64
}

// New constructs a Session bound to store s, which must already be
// open, and callbacks cb.
func New(serverSignPublicKey ed25519.PublicKey, s *store.Store, cb Callbacks) *Session {
	return &Session{
		serverSignPublicKey: serverSignPublicKey,
		store:               s,
		callbacks:           cb,
		now:                 nowMillis,
	}
}

func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }

// Connect dials host:port and runs the client handshake. On success
// the session is ready to log in or register.
func (s *Session) Connect(host string, port int) error {
	nc, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return wrap(KindTransport, "dial", err)
	}
	c, _, err := ClientHandshake(nc, s.serverSignPublicKey)
	if err != nil {
		nc.Close()
		return err
	}
	s.c = c
	s.auth.setState(Unauthenticated)
	return nil
}

// Disconnect tears down the transport and resets the auth state to
// UNAUTHENTICATED, requiring a fresh Connect + re-authentication
// (spec.md: "disconnect at any point ⇒ UNAUTHENTICATED").
func (s *Session) Disconnect() {
	if s.c != nil {
		s.c.close()
	}
	s.auth.reset()
	if s.callbacks.OnDisconnected != nil {
		s.callbacks.OnDisconnected()
	}
}

// State returns the current auth state, session token, and user id.
func (s *Session) State() (AuthState, [wire.TokenSize]byte, uint32) {
	return s.auth.get()
}
