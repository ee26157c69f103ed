package session

import (
	"fmt"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
	"github.com/shurlinet/exchatge-client/internal/store"
	"github.com/shurlinet/exchatge-client/internal/wire"
)

// SetIgnoreUsualMessages raises or clears the drain guard described in
// spec.md §5: while set, inbound PROCEED frames are dropped instead of
// decrypted, because a late decryption attempt against an
// already-advanced ratchet would fail. Callers raise this before a
// users-list-fetch-and-missing-messages-drain sequence and clear it
// once the drain (FetchMissingMessages) completes.
func (s *Session) SetIgnoreUsualMessages(ignore bool) {
	s.ignoreUsualMu.Lock()
	s.ignoreUsual = ignore
	s.ignoreUsualMu.Unlock()
}

func (s *Session) ignoring() bool {
	s.ignoreUsualMu.Lock()
	defer s.ignoreUsualMu.Unlock()
	return s.ignoreUsual
}

// handleProceed decrypts and persists an inbound conversation message
// (spec.md §4.4.6). Frames arriving while SetIgnoreUsualMessages(true)
// is in effect are dropped: they are expected to be re-obtained via
// FetchMissingMessages instead.
func (s *Session) handleProceed(f *wire.Frame) error {
	if f.From == wire.FromServer || f.From == wire.FromAnonymous {
		return wrap(KindProtocol, "handle PROCEED", fmt.Errorf("invalid sender %d", f.From))
	}
	if s.ignoring() {
		return nil
	}

	cs, err := s.store.LoadConversation(f.From)
	if err != nil {
		return wrap(KindStore, "load conversation", err)
	}
	padded, err := cs.Pull.Pull(f.ValidBody())
	if err != nil {
		return wrap(KindCrypto, "stream decrypt message", err)
	}
	plaintext, err := cryptoprim.Unpad(padded)
	if err != nil {
		return wrap(KindCrypto, "unpad message", err)
	}
	if err := s.store.SaveConversation(cs); err != nil {
		return wrap(KindStore, "persist advanced pull state", err)
	}

	if err := s.persistMessage(f.From, f.From, f.Timestamp, plaintext); err != nil {
		return err
	}

	if s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(f.From, f.Timestamp, plaintext)
	}
	return nil
}

// SendMessage pads, stream-encrypts, and sends text to peerID, then
// persists the updated push state and the plaintext history entry
// (spec.md §4.4.6 steps 1-4).
func (s *Session) SendMessage(peerID uint32, text []byte) error {
	if err := s.requireAuthenticated(); err != nil {
		return err
	}
	cs, err := s.store.LoadConversation(peerID)
	if err != nil {
		return wrap(KindStore, "load conversation", err)
	}

	padded := cryptoprim.Pad(text, 8)
	ciphertext, err := cs.Push.Push(padded)
	if err != nil {
		return wrap(KindCrypto, "stream encrypt message", err)
	}
	if err := s.store.SaveConversation(cs); err != nil {
		return wrap(KindStore, "persist advanced push state", err)
	}

	timestamp := s.now()
	if err := s.persistMessage(peerID, 0, timestamp, text); err != nil {
		return err
	}

	_, token, selfID := s.auth.get()
	f, err := wire.NewFrame(wire.FlagProceed, timestamp, selfID, peerID, token, ciphertext, 0, 1)
	if err != nil {
		return wrap(KindProtocol, "build PROCEED frame", err)
	}
	return s.c.send(f)
}

// persistMessage seals plaintext and appends it to the conversation's
// history. The from_id recorded is inboundFromID for an inbound message;
// an inboundFromID of 0 marks an outbound one, recorded under our own id.
func (s *Session) persistMessage(conversationID, inboundFromID uint32, timestamp uint64, plaintext []byte) error {
	fromID := inboundFromID
	if fromID == 0 {
		_, _, selfID := s.auth.get()
		fromID = selfID
	}
	sealed, err := s.store.Seal(plaintext)
	if err != nil {
		return wrap(KindStore, "seal message", err)
	}
	err = s.store.AppendMessage(&store.Message{
		Timestamp:      timestamp,
		ConversationID: conversationID,
		FromID:         fromID,
		SealedText:     sealed,
		PlaintextSize:  uint32(len(plaintext)),
	})
	if err != nil {
		return wrap(KindStore, "append message", err)
	}
	return nil
}

// FetchMissingMessages replays locally persisted history for peerID
// newer than afterTimestamp, delivering each via OnMessage. This is
// the resolution (see DESIGN.md) of spec.md's undefined wire-level
// "_FETCH_MESSAGES" gap: the drain is satisfied entirely from C2's
// already-decrypted history rather than a new wire round-trip, since
// every message was persisted in plaintext-sealed form at the moment
// it was first received. Callers should bracket this with
// SetIgnoreUsualMessages(true)/(false) per spec.md §5.
func (s *Session) FetchMissingMessages(peerID uint32, afterTimestamp uint64, limit int) error {
	messages, err := s.store.FetchMessages(peerID, afterTimestamp, limit)
	if err != nil {
		return wrap(KindStore, "fetch missing messages", err)
	}
	for _, m := range messages {
		plaintext, err := s.store.Open(m.SealedText)
		if err != nil {
			return wrap(KindStore, "unseal stored message", err)
		}
		if s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(m.FromID, m.Timestamp, plaintext)
		}
	}
	return nil
}
