package session

import (
	"testing"

	"github.com/shurlinet/exchatge-client/internal/wire"
)

func TestLogInSendsFrameAndAwaitsAuthentication(t *testing.T) {
	s, sc, _ := pairedSessions(t)

	if err := s.LogIn("alice", "hunter2"); err != nil {
		t.Fatalf("LogIn: %v", err)
	}
	state, _, _ := s.State()
	if state != AwaitingAuthentication {
		t.Fatalf("state = %v, want AwaitingAuthentication", state)
	}

	f, err := sc.recv()
	if err != nil {
		t.Fatalf("server recv: %v", err)
	}
	if f.Flag != wire.FlagLogIn {
		t.Fatalf("flag = 0x%x, want LOG_IN", f.Flag)
	}
	body := f.ValidBody()
	if string(body[:5]) != "alice" {
		t.Fatalf("username mismatch in body: %q", body[:wire.UsernameSize])
	}
}

func TestFetchUsersRequiresAuthentication(t *testing.T) {
	s, _, _ := pairedSessions(t)
	if err := s.FetchUsers(); err != ErrNotAuthenticated {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestFetchUsersSendsTokenWhenAuthenticated(t *testing.T) {
	s, sc, _ := pairedSessions(t)
	var token [wire.TokenSize]byte
	token[3] = 0x9
	s.auth.setAuthenticated(token, 9)

	if err := s.FetchUsers(); err != nil {
		t.Fatalf("FetchUsers: %v", err)
	}
	f, err := sc.recv()
	if err != nil {
		t.Fatalf("server recv: %v", err)
	}
	if f.Flag != wire.FlagFetchUsers || f.Token != token {
		t.Fatalf("f = %+v, want FETCH_USERS with matching token", f)
	}
}

func TestShutdownServerRequiresAuthentication(t *testing.T) {
	s, _, _ := pairedSessions(t)
	if err := s.ShutdownServer(); err != ErrNotAuthenticated {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}
