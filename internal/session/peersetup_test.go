package session

import (
	"testing"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// These tests drive one side of the peer conversation setup handshake
// (CreateConversation or ReplyToConversationSetupInvite) against a
// hand-rolled peer built from raw cryptoprim calls on sc, the same raw
// conn the server-handshake tests use — the server relays peer setup
// frames verbatim, so sc stands in for "whatever the relayed peer
// would have sent."

func TestCreateConversationInviterAcceptFlow(t *testing.T) {
	s, sc, _ := pairedSessions(t)
	const peerID = 99

	type csResult struct {
		push *cryptoprim.StreamState
		pull *cryptoprim.StreamState
		err  error
	}
	resultCh := make(chan csResult, 1)
	go func() {
		cs, err := s.CreateConversation(peerID)
		if err != nil {
			resultCh <- csResult{err: err}
			return
		}
		resultCh <- csResult{push: cs.Push, pull: cs.Pull}
	}()

	invite, err := sc.recv()
	if err != nil {
		t.Fatalf("responder recv invite: %v", err)
	}
	if invite.Flag != wire.FlagExchangeKeys {
		t.Fatalf("invite flag = 0x%x, want EXCHANGE_KEYS", invite.Flag)
	}

	responder, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		t.Fatalf("responder keypair: %v", err)
	}
	reply, err := wire.NewFrame(wire.FlagExchangeKeys, 1, peerID, 0, wire.AnonymousToken, responder.Public, 0, 1)
	if err != nil {
		t.Fatalf("build reply: %v", err)
	}
	if err := sc.send(reply); err != nil {
		t.Fatalf("responder send pubkey: %v", err)
	}

	keysDone, err := sc.recv()
	if err != nil {
		t.Fatalf("responder recv keys-done: %v", err)
	}
	if keysDone.Flag != wire.FlagExchangeKeysDone {
		t.Fatalf("flag = 0x%x, want EXCHANGE_KEYS_DONE", keysDone.Flag)
	}
	keys, err := cryptoprim.DeriveSessionKeysAsServer(responder.Private, keysDone.ValidBody())
	if err != nil {
		t.Fatalf("derive responder keys: %v", err)
	}

	responderPush, responderHeader, err := cryptoprim.StreamInitPush(keys.Tx)
	if err != nil {
		t.Fatalf("responder stream init push: %v", err)
	}
	headerFrame, err := wire.NewFrame(wire.FlagExchangeHeaders, 1, peerID, 0, wire.AnonymousToken, responderHeader, 0, 1)
	if err != nil {
		t.Fatalf("build header frame: %v", err)
	}
	if err := sc.send(headerFrame); err != nil {
		t.Fatalf("responder send header: %v", err)
	}

	headersDone, err := sc.recv()
	if err != nil {
		t.Fatalf("responder recv headers-done: %v", err)
	}
	if headersDone.Flag != wire.FlagExchangeHeadersDone {
		t.Fatalf("flag = 0x%x, want EXCHANGE_HEADERS_DONE", headersDone.Flag)
	}
	responderPull, err := cryptoprim.StreamInitPull(keys.Rx, headersDone.ValidBody())
	if err != nil {
		t.Fatalf("responder stream init pull: %v", err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("CreateConversation: %v", res.err)
	}

	ciphertext, err := res.push.Push(cryptoprim.Pad([]byte("hi"), 8))
	if err != nil {
		t.Fatalf("inviter push: %v", err)
	}
	plain, err := responderPull.Pull(ciphertext)
	if err != nil {
		t.Fatalf("responder pull: %v", err)
	}
	unpadded, err := cryptoprim.Unpad(plain)
	if err != nil || string(unpadded) != "hi" {
		t.Fatalf("round trip mismatch: %q, err=%v", unpadded, err)
	}

	reverse, err := responderPush.Push(cryptoprim.Pad([]byte("hey"), 8))
	if err != nil {
		t.Fatalf("responder push: %v", err)
	}
	plain2, err := res.pull.Pull(reverse)
	if err != nil {
		t.Fatalf("inviter pull: %v", err)
	}
	unpadded2, err := cryptoprim.Unpad(plain2)
	if err != nil || string(unpadded2) != "hey" {
		t.Fatalf("reverse round trip mismatch: %q, err=%v", unpadded2, err)
	}
}

func TestCreateConversationDeniedByPeer(t *testing.T) {
	s, sc, _ := pairedSessions(t)
	const peerID = 7

	resultCh := make(chan error, 1)
	go func() {
		_, err := s.CreateConversation(peerID)
		resultCh <- err
	}()

	if _, err := sc.recv(); err != nil {
		t.Fatalf("responder recv invite: %v", err)
	}
	deny, err := wire.NewFrame(wire.FlagExchangeKeys, 1, peerID, 0, wire.AnonymousToken, []byte{0, 0}, 0, 1)
	if err != nil {
		t.Fatalf("build deny: %v", err)
	}
	if err := sc.send(deny); err != nil {
		t.Fatalf("responder send deny: %v", err)
	}

	if err := <-resultCh; err != ErrConversationDenied {
		t.Fatalf("err = %v, want ErrConversationDenied", err)
	}
}

func TestReplyToConversationSetupInviteResponderFlow(t *testing.T) {
	s, sc, _ := pairedSessions(t)
	const inviterID = 11

	type csResult struct {
		push *cryptoprim.StreamState
		pull *cryptoprim.StreamState
		err  error
	}
	resultCh := make(chan csResult, 1)
	go func() {
		cs, err := s.ReplyToConversationSetupInvite(inviterID, true)
		if err != nil {
			resultCh <- csResult{err: err}
			return
		}
		resultCh <- csResult{push: cs.Push, pull: cs.Pull}
	}()

	responderPubFrame, err := sc.recv()
	if err != nil {
		t.Fatalf("inviter recv responder pubkey: %v", err)
	}
	if responderPubFrame.Flag != wire.FlagExchangeKeys {
		t.Fatalf("flag = 0x%x, want EXCHANGE_KEYS", responderPubFrame.Flag)
	}

	inviter, err := cryptoprim.GenerateKeyPair()
	if err != nil {
		t.Fatalf("inviter keypair: %v", err)
	}
	keys, err := cryptoprim.DeriveSessionKeysAsClient(inviter.Private, responderPubFrame.ValidBody())
	if err != nil {
		t.Fatalf("derive inviter keys: %v", err)
	}

	keysDone, err := wire.NewFrame(wire.FlagExchangeKeysDone, 1, inviterID, 0, wire.AnonymousToken, inviter.Public, 0, 1)
	if err != nil {
		t.Fatalf("build keys-done: %v", err)
	}
	if err := sc.send(keysDone); err != nil {
		t.Fatalf("inviter send keys-done: %v", err)
	}

	headerFrame, err := sc.recv()
	if err != nil {
		t.Fatalf("inviter recv header: %v", err)
	}
	inviterPull, err := cryptoprim.StreamInitPull(keys.Rx, headerFrame.ValidBody())
	if err != nil {
		t.Fatalf("inviter stream init pull: %v", err)
	}

	inviterPush, inviterHeader, err := cryptoprim.StreamInitPush(keys.Tx)
	if err != nil {
		t.Fatalf("inviter stream init push: %v", err)
	}
	headersDone, err := wire.NewFrame(wire.FlagExchangeHeadersDone, 1, inviterID, 0, wire.AnonymousToken, inviterHeader, 0, 1)
	if err != nil {
		t.Fatalf("build headers-done: %v", err)
	}
	if err := sc.send(headersDone); err != nil {
		t.Fatalf("inviter send headers-done: %v", err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("ReplyToConversationSetupInvite: %v", res.err)
	}

	ciphertext, err := res.push.Push(cryptoprim.Pad([]byte("ack"), 8))
	if err != nil {
		t.Fatalf("responder push: %v", err)
	}
	plain, err := inviterPull.Pull(ciphertext)
	if err != nil {
		t.Fatalf("inviter pull: %v", err)
	}
	unpadded, err := cryptoprim.Unpad(plain)
	if err != nil || string(unpadded) != "ack" {
		t.Fatalf("round trip mismatch: %q, err=%v", unpadded, err)
	}

	reverse, err := inviterPush.Push(cryptoprim.Pad([]byte("welcome"), 8))
	if err != nil {
		t.Fatalf("inviter push: %v", err)
	}
	plain2, err := res.pull.Pull(reverse)
	if err != nil {
		t.Fatalf("responder pull: %v", err)
	}
	unpadded2, err := cryptoprim.Unpad(plain2)
	if err != nil || string(unpadded2) != "welcome" {
		t.Fatalf("reverse round trip mismatch: %q, err=%v", unpadded2, err)
	}
}

func TestReplyToConversationSetupInviteDecline(t *testing.T) {
	s, sc, _ := pairedSessions(t)
	const inviterID = 12

	if _, err := s.ReplyToConversationSetupInvite(inviterID, false); err != nil {
		t.Fatalf("decline: %v", err)
	}

	f, err := sc.recv()
	if err != nil {
		t.Fatalf("inviter recv: %v", err)
	}
	if f.Flag != wire.FlagExchangeKeys || f.Size != 2 {
		t.Fatalf("f = %+v, want EXCHANGE_KEYS with size 2", f)
	}
}
