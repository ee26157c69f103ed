package session

import (
	"errors"
	"net"
	"time"
)

// Idle reports whether the session is safe to poll for an inbound
// frame: neither a peer conversation setup nor a file exchange is
// currently blocked on reading the same connection. This mirrors
// original_source/src/net.c's netListen() guard
// ("!checkSocket() || this->settingUpConversation"), generalized to
// also cover the file-exchange exclusive read this client adds.
func (s *Session) Idle() bool {
	s.settingUpMu.Lock()
	settingUp := s.settingUp
	s.settingUpMu.Unlock()
	if settingUp {
		return false
	}
	s.file.mu.Lock()
	fileActive := s.file.peer != 0
	s.file.mu.Unlock()
	return !fileActive
}

// PollOnce checks, without blocking longer than timeout, whether a
// frame is ready and dispatches it if so. It reports false with a nil
// error both when the session is not Idle and when the read simply
// timed out — the orchestrator's poll ticker (internal/orchestrator)
// treats either as "nothing to do this tick." A non-timeout read
// error still disconnects and is returned, the way a failed
// original_source/src/net.c receive() does.
func (s *Session) PollOnce(timeout time.Duration) (bool, error) {
	if !s.Idle() {
		return false, nil
	}

	if err := s.c.setReadDeadline(timeout); err != nil {
		return false, wrap(KindTransport, "set poll read deadline", err)
	}

	f, err := s.c.recv()
	if err != nil {
		if isTimeout(err) {
			s.c.clearReadDeadline()
			return false, nil
		}
		s.Disconnect()
		return false, err
	}
	s.c.clearReadDeadline()

	if err := s.verifyAndDispatch(f); err != nil {
		return true, err
	}
	return true, nil
}

func isTimeout(err error) bool {
	var sessErr *Error
	if errors.As(err, &sessErr) {
		err = sessErr.Err
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
