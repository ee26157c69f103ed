package session

import (
	"fmt"
	"time"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/store"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// setupTimeout bounds every wait in the peer conversation setup
// handshake (spec.md §4.4.5).
const setupTimeout = 5 * time.Second

// beginSetup claims the connection's single-reader role for peer, the
// same single-flight guard original_source/src/net.c's
// settingUpConversation boolean provides. Session.Idle() reports false
// for the duration, which is what stops the orchestrator's network
// poll loop from racing this call for the socket (spec.md §5).
func (s *Session) beginSetup(peer uint32) error {
	s.settingUpMu.Lock()
	defer s.settingUpMu.Unlock()
	if s.settingUp {
		return ErrSetupInProgress
	}
	s.settingUp = true
	s.setupPeer = peer
	return nil
}

func (s *Session) endSetup() {
	s.settingUpMu.Lock()
	defer s.settingUpMu.Unlock()
	s.settingUp = false
	s.setupPeer = 0
}

// waitSetupFrame blocks reading the socket directly — it is, for as
// long as it runs, the connection's only reader — until a frame with
// wantFlag arrives from peer or setupTimeout elapses. Any other frame
// encountered along the way (a broadcast, say) is dispatched normally
// instead of being dropped; a frame whose dispatch fails, such as a
// file chunk with no active exchange, ends the wait with that error.
func (s *Session) waitSetupFrame(peer uint32, wantFlag int32) (*wire.Frame, error) {
	deadline := time.Now().Add(setupTimeout)
	f, err := s.readUntil(deadline, func(f *wire.Frame) bool {
		return f.From == peer && f.Flag == wantFlag
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Session) sendPeer(flag int32, peerID uint32, body []byte) error {
	_, token, selfID := s.auth.get()
	f, err := wire.NewFrame(flag, s.now(), selfID, peerID, token, body, 0, 1)
	if err != nil {
		return wrap(KindProtocol, "build peer setup frame", err)
	}
	return s.c.send(f)
}

// CreateConversation runs the inviter side of the 4-message peer
// conversation setup against peerID (spec.md §4.4.5). On success the
// returned state is ready to be persisted by the caller.
func (s *Session) CreateConversation(peerID uint32) (*store.ConversationState, error) {
	if err := s.beginSetup(peerID); err != nil {
		return nil, err
	}
	defer s.endSetup()

	ours, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		return nil, wrap(KindCrypto, "generate inviter keypair", err)
	}

	if err := s.sendPeer(wire.FlagExchangeKeys, peerID, []byte{0}); err != nil {
		return nil, err
	}

	reply, err := s.waitSetupFrame(peerID, wire.FlagExchangeKeys)
	if err != nil {
		return nil, err
	}
	if reply.Size == 2 {
		return nil, ErrConversationDenied
	}
	if reply.Size != cryptoprim.KeySize {
		return nil, wrap(KindProtocol, "peer setup", fmt.Errorf("unexpected reply size %d", reply.Size))
	}
	responderPub := append([]byte{}, reply.ValidBody()...)

	keys, err := cryptoprim.DeriveSessionKeysAsClient(ours.Private, responderPub)
	if err != nil {
		return nil, wrap(KindCrypto, "derive inviter session keys", err)
	}

	if err := s.sendPeer(wire.FlagExchangeKeysDone, peerID, ours.Public); err != nil {
		return nil, err
	}

	headerFrame, err := s.waitSetupFrame(peerID, wire.FlagExchangeHeaders)
	if err != nil {
		return nil, err
	}
	if int(headerFrame.Size) != cryptoprim.HeaderSize {
		return nil, wrap(KindProtocol, "peer setup", fmt.Errorf("unexpected header size %d", headerFrame.Size))
	}
	pull, err := cryptoprim.StreamInitPull(keys.Rx, headerFrame.ValidBody())
	if err != nil {
		return nil, wrap(KindCrypto, "init inviter decryption stream", err)
	}

	push, ourHeader, err := cryptoprim.StreamInitPush(keys.Tx)
	if err != nil {
		return nil, wrap(KindCrypto, "init inviter encryption stream", err)
	}
	if err := s.sendPeer(wire.FlagExchangeHeadersDone, peerID, ourHeader); err != nil {
		return nil, err
	}

	return &store.ConversationState{UserID: peerID, Push: push, Pull: pull}, nil
}

// ReplyToConversationSetupInvite runs the responder side, after the
// caller has been notified via Callbacks.OnConversationInvite and
// decided whether to accept.
func (s *Session) ReplyToConversationSetupInvite(fromID uint32, accept bool) (*store.ConversationState, error) {
	if !accept {
		return nil, s.sendPeer(wire.FlagExchangeKeys, fromID, []byte{0, 0})
	}

	if err := s.beginSetup(fromID); err != nil {
		return nil, err
	}
	defer s.endSetup()

	ours, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		return nil, wrap(KindCrypto, "generate responder keypair", err)
	}
	if err := s.sendPeer(wire.FlagExchangeKeys, fromID, ours.Public); err != nil {
		return nil, err
	}

	doneFrame, err := s.waitSetupFrame(fromID, wire.FlagExchangeKeysDone)
	if err != nil {
		return nil, err
	}
	if doneFrame.Size != cryptoprim.KeySize {
		return nil, wrap(KindProtocol, "peer setup", fmt.Errorf("unexpected inviter key size %d", doneFrame.Size))
	}
	inviterPub := append([]byte{}, doneFrame.ValidBody()...)

	keys, err := cryptoprim.DeriveSessionKeysAsServer(ours.Private, inviterPub)
	if err != nil {
		return nil, wrap(KindCrypto, "derive responder session keys", err)
	}

	push, ourHeader, err := cryptoprim.StreamInitPush(keys.Tx)
	if err != nil {
		return nil, wrap(KindCrypto, "init responder encryption stream", err)
	}
	if err := s.sendPeer(wire.FlagExchangeHeaders, fromID, ourHeader); err != nil {
		return nil, err
	}

	headersDone, err := s.waitSetupFrame(fromID, wire.FlagExchangeHeadersDone)
	if err != nil {
		return nil, err
	}
	if int(headersDone.Size) != cryptoprim.HeaderSize {
		return nil, wrap(KindProtocol, "peer setup", fmt.Errorf("unexpected inviter header size %d", headersDone.Size))
	}
	pull, err := cryptoprim.StreamInitPull(keys.Rx, headersDone.ValidBody())
	if err != nil {
		return nil, wrap(KindCrypto, "init responder decryption stream", err)
	}

	return &store.ConversationState{UserID: fromID, Push: push, Pull: pull}, nil
}
