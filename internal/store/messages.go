package store

import "fmt"

// Message is one persisted entry of a conversation's history. Text is
// kept sealed at rest; the session protocol unseals it only after
// reading it back out of the store.
type Message struct {
	Timestamp      uint64
	ConversationID uint32
	FromID         uint32
	SealedText     []byte
	PlaintextSize  uint32
}

// AppendMessage inserts a message row. The conversation must already
// exist: inserting against a missing conversation is a programming
// error per spec.md §4.2's schema invariants and fails loudly via the
// foreign-key constraint rather than being silently tolerated.
func (s *Store) AppendMessage(m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO messages (timestamp, conversation_id, from_id, sealed_text, plaintext_size) VALUES (?, ?, ?, ?, ?)`,
		m.Timestamp, m.ConversationID, m.FromID, m.SealedText, m.PlaintextSize,
	)
	if err != nil {
		return fmt.Errorf("store: append message to conversation %d: %w", m.ConversationID, err)
	}
	return nil
}

// FetchMessages returns up to limit messages belonging to
// conversationID with timestamp strictly greater than afterTimestamp,
// ordered oldest first. Supplementary operation pulled from
// original_source/src/database.c, used by the session protocol's
// missing-messages fetch pump (SPEC_FULL.md §4.4) to resynchronize a
// peer conversation after a gap using only locally persisted history.
func (s *Store) FetchMessages(conversationID uint32, afterTimestamp uint64, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT timestamp, conversation_id, from_id, sealed_text, plaintext_size
		 FROM messages WHERE conversation_id = ? AND timestamp > ?
		 ORDER BY timestamp ASC LIMIT ?`,
		conversationID, afterTimestamp, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: fetch messages for conversation %d: %w", conversationID, err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.Timestamp, &m.ConversationID, &m.FromID, &m.SealedText, &m.PlaintextSize); err != nil {
			return nil, fmt.Errorf("store: scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages for conversation %d: %w", conversationID, err)
	}
	return out, nil
}
