package session

import (
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// LogIn sends a LOG_IN frame and transitions to AWAITING_AUTHENTICATION.
// The result (AUTHENTICATED, with token and user id captured, or a
// return to UNAUTHENTICATED on failure, with the connection left open)
// arrives asynchronously through dispatch and the
// OnLoggedIn/OnLoginFailed callbacks.
func (s *Session) LogIn(username, password string) error {
	body := credentialsBody(username, password)
	f, err := wire.NewFrame(wire.FlagLogIn, s.now(), wire.FromAnonymous, wire.ToServer, wire.AnonymousToken, body, 0, 1)
	if err != nil {
		return wrap(KindProtocol, "build LOG_IN frame", err)
	}
	if err := s.c.send(f); err != nil {
		return err
	}
	s.auth.setState(AwaitingAuthentication)
	return nil
}

// Register sends a REGISTER frame. The server always disconnects
// after responding regardless of outcome (spec.md §4.4.3); the result
// arrives via OnRegistered.
func (s *Session) Register(username, password string) error {
	body := credentialsBody(username, password)
	f, err := wire.NewFrame(wire.FlagRegister, s.now(), wire.FromAnonymous, wire.ToServer, wire.AnonymousToken, body, 0, 1)
	if err != nil {
		return wrap(KindProtocol, "build REGISTER frame", err)
	}
	if err := s.c.send(f); err != nil {
		return err
	}
	s.auth.setState(AwaitingAuthentication)
	return nil
}

func credentialsBody(username, password string) []byte {
	body := make([]byte, wire.UsernameSize+wire.PasswordSize)
	copy(body[:wire.UsernameSize], username)
	copy(body[wire.UsernameSize:], password)
	return body
}

// FetchUsers sends a FETCH_USERS request. The multi-part response is
// accumulated by dispatch and delivered via OnUsersFetched.
func (s *Session) FetchUsers() error {
	if err := s.requireAuthenticated(); err != nil {
		return err
	}
	_, token, id := s.auth.get()
	f, err := wire.NewFrame(wire.FlagFetchUsers, s.now(), id, wire.ToServer, token, nil, 0, 1)
	if err != nil {
		return wrap(KindProtocol, "build FETCH_USERS frame", err)
	}
	return s.c.send(f)
}

// ShutdownServer sends the admin SHUTDOWN command.
func (s *Session) ShutdownServer() error {
	if err := s.requireAuthenticated(); err != nil {
		return err
	}
	_, token, id := s.auth.get()
	f, err := wire.NewFrame(wire.FlagShutdown, s.now(), id, wire.ToServer, token, nil, 0, 1)
	if err != nil {
		return wrap(KindProtocol, "build SHUTDOWN frame", err)
	}
	return s.c.send(f)
}

func (s *Session) requireAuthenticated() error {
	state, _, _ := s.auth.get()
	if state != Authenticated && state != ExchangingMessages {
		return ErrNotAuthenticated
	}
	return nil
}
