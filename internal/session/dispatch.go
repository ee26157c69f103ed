package session

import (
	"fmt"
	"time"

	"github.com/shurlinet/exchatge-client/internal/wire"
)

// Recv reads and dispatches exactly one inbound frame. It must only
// ever be called from the network poll goroutine (spec.md §5) — the
// only other legitimate reader of the socket is a blocking setup or
// file-exchange call, and Idle() keeps the two from overlapping.
func (s *Session) Recv() error {
	f, err := s.c.recv()
	if err != nil {
		s.Disconnect()
		return err
	}
	return s.verifyAndDispatch(f)
}

func (s *Session) verifyAndDispatch(f *wire.Frame) error {
	if !wire.VerifyInbound(s.serverSignPublicKey, f) {
		s.Disconnect()
		return wrap(KindProtocol, "verify inbound token", fmt.Errorf("server-origin frame failed token verification"))
	}
	return s.dispatch(f)
}

func (s *Session) dispatch(f *wire.Frame) error {
	switch f.Flag {
	case wire.FlagProceed:
		return s.handleProceed(f)

	case wire.FlagFileInvite:
		return s.handleFileInvite(f)

	case wire.FlagFileAccept, wire.FlagFileDeny, wire.FlagFileChunk:
		s.file.mu.Lock()
		active := s.file.peer != 0 && s.file.peer == f.From
		s.file.mu.Unlock()
		if active {
			// The blocking waitFileFrame call driving this exchange
			// reads the socket directly and will see this frame
			// itself; dispatch has nothing further to do with it.
			return nil
		}
		return wrap(KindProtocol, "dispatch", fmt.Errorf("file exchange frame 0x%x from %d with no active exchange", f.Flag, f.From))

	case wire.FlagLoggedIn:
		// The header token of a server-origin frame is the server's
		// signature; the session token travels in the body.
		var token [wire.TokenSize]byte
		copy(token[:], f.ValidBody())
		s.auth.setAuthenticated(token, f.To)
		if s.callbacks.OnLoggedIn != nil {
			s.callbacks.OnLoggedIn(f.To)
		}
		return nil

	case wire.FlagUnauthenticated, wire.FlagAccessDenied:
		s.auth.setState(Unauthenticated)
		if s.callbacks.OnLoginFailed != nil {
			s.callbacks.OnLoginFailed()
		}
		return nil

	case wire.FlagRegistered:
		if s.callbacks.OnRegistered != nil {
			s.callbacks.OnRegistered(true)
		}
		return nil

	case wire.FlagError:
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(f.Flag)
		}
		return nil

	case wire.FlagFetchUsers:
		return s.accumulateUsers(f)

	case wire.FlagBroadcast:
		if s.callbacks.OnBroadcast != nil {
			s.callbacks.OnBroadcast(append([]byte{}, f.ValidBody()...))
		}
		return nil

	case wire.FlagExchangeKeys:
		return s.handleIncomingInvite(f)

	default:
		s.Disconnect()
		return wrap(KindProtocol, "dispatch", fmt.Errorf("unknown flag 0x%x from server", f.Flag))
	}
}

// accumulateUsers gathers FETCH_USERS parts in index order and fires
// OnUsersFetched once the final part (index == count-1) is consumed,
// per spec.md §4.4.4.
func (s *Session) accumulateUsers(f *wire.Frame) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	s.usersBody = append(s.usersBody, f.ValidBody()...)
	if f.Index+1 < f.Count {
		return nil
	}

	users, err := wire.UnpackUserInfoList(s.usersBody)
	s.usersBody = nil
	if err != nil {
		return wrap(KindProtocol, "unpack FETCH_USERS body", err)
	}
	if s.callbacks.OnUsersFetched != nil {
		s.callbacks.OnUsersFetched(users)
	}
	return nil
}

// handleFileInvite decodes an unsolicited file exchange offer and
// delivers it via Callbacks.OnFileInvite. The receiver accepts or
// declines through ReceiveFileExchange/DeclineFileExchange, which
// claim the connection's sole-reader role for the duration of the
// transfer that follows.
func (s *Session) handleFileInvite(f *wire.Frame) error {
	plaintext, err := s.decodeFilePlaintext(f)
	if err != nil {
		return err
	}
	invite, err := parseInvite(f.From, plaintext)
	if err != nil {
		return wrap(KindProtocol, "decode file invite", err)
	}
	if s.callbacks.OnFileInvite != nil {
		s.callbacks.OnFileInvite(invite.FromID, invite.Size, invite.Hash, invite.Filename)
	}
	return nil
}

// readUntil blocks reading the socket directly — the caller must hold
// the connection's single-reader role for its duration (beginSetup or
// beginFileExchange) — until a frame satisfying match arrives or
// deadline passes. Every frame that doesn't match is dispatched
// normally before the loop reads again, so an unrelated broadcast is
// not dropped; if dispatching such a frame returns an error (an
// incoming conversation invite during setup, a file frame with no
// active exchange), the wait ends with that error.
func (s *Session) readUntil(deadline time.Time, match func(*wire.Frame) bool) (*wire.Frame, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, wrap(KindTimeout, "wait for frame", fmt.Errorf("timed out waiting for peer"))
		}
		if err := s.c.setReadDeadline(remaining); err != nil {
			return nil, wrap(KindTransport, "set read deadline", err)
		}
		f, err := s.c.recv()
		s.c.clearReadDeadline()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			s.Disconnect()
			return nil, err
		}
		if !wire.VerifyInbound(s.serverSignPublicKey, f) {
			s.Disconnect()
			return nil, wrap(KindProtocol, "verify inbound token", fmt.Errorf("server-origin frame failed token verification"))
		}
		if match(f) {
			return f, nil
		}
		if err := s.dispatch(f); err != nil {
			return nil, err
		}
	}
}

func (s *Session) handleIncomingInvite(f *wire.Frame) error {
	s.settingUpMu.Lock()
	already := s.settingUp
	s.settingUpMu.Unlock()
	if already {
		return wrap(KindProtocol, "incoming invite", fmt.Errorf("conversation setup already in progress"))
	}
	if s.callbacks.OnConversationInvite != nil {
		s.callbacks.OnConversationInvite(f.From)
	}
	return nil
}
