// Package store implements the encrypted local database: per-peer
// stream-cipher state and message history, sealed under a key derived
// from the login password, plus the first-run/wrong-password check
// performed against a sealed machine-id cell.
//
// All operations are serialized through a single sync.RWMutex and
// return only plain values — never a *sql.Rows cursor or any other
// reference into the underlying connection (spec.md §4.2, and see
// DESIGN.md for why this mirrors internal/relay.TokenStore's shape
// rather than the database/sql idiom of streaming rows to the caller).
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/shurlinet/exchatge-client/internal/cryptoprim"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	user_id               INTEGER PRIMARY KEY,
	sealed_streams_states BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	timestamp       INTEGER NOT NULL,
	conversation_id INTEGER NOT NULL,
	from_id         INTEGER NOT NULL,
	sealed_text     BLOB NOT NULL,
	plaintext_size  INTEGER NOT NULL,
	PRIMARY KEY (conversation_id, timestamp, from_id),
	FOREIGN KEY (conversation_id) REFERENCES conversations(user_id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS service (
	machine_id BLOB NOT NULL
);
`

// Store is the opened, unsealed local database. The zero value is not
// usable; construct one with Open.
type Store struct {
	mu  sync.RWMutex
	db  *sql.DB
	key []byte // 32 bytes, derived from the login password
}

// Open derives the store key from password, opens (creating if
// necessary) the sqlite file at path, ensures the schema, and performs
// the first-run/wrong-password machine-id check described in
// spec.md §4.2. Journaling and the write-ahead log are disabled: the
// store trades crash durability for throughput and for never leaving a
// plaintext transaction log on disk.
func Open(path string, password []byte) (*Store, error) {
	key, err := cryptoprim.DeriveKeyFromPassword(password)
	if err != nil {
		return nil, fmt.Errorf("store: derive key: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // one connection: the mutex already serializes access

	for _, pragma := range []string{
		"PRAGMA journal_mode = OFF",
		"PRAGMA synchronous = OFF",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}

	s := &Store{db: db, key: key[:]}
	if err := s.checkOrAcceptMachineID(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkOrAcceptMachineID implements spec.md §4.2's "opening the store"
// steps 1–2.
func (s *Store) checkOrAcceptMachineID() error {
	var sealed []byte
	err := s.db.QueryRow(`SELECT machine_id FROM service LIMIT 1`).Scan(&sealed)
	switch {
	case err == sql.ErrNoRows:
		current, err := hostID()
		if err != nil {
			return fmt.Errorf("store: host id: %w", err)
		}
		blob, err := cryptoprim.Seal(s.key, current)
		if err != nil {
			return fmt.Errorf("store: seal machine id: %w", err)
		}
		if _, err := s.db.Exec(`INSERT INTO service (machine_id) VALUES (?)`, blob); err != nil {
			return fmt.Errorf("store: persist machine id: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("store: read machine id: %w", err)
	}

	plain, err := cryptoprim.Open(s.key, sealed)
	if err != nil {
		return ErrWrongPassword
	}
	current, err := hostID()
	if err != nil {
		return fmt.Errorf("store: host id: %w", err)
	}
	if string(plain) != string(current) {
		return ErrWrongPassword
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Seal encrypts plain under the store's password-derived key. Exposed
// so the session protocol can seal message plaintext for at-rest
// storage without holding its own copy of the key.
func (s *Store) Seal(plain []byte) ([]byte, error) {
	return cryptoprim.Seal(s.key, plain)
}

// Open decrypts a blob previously produced by Seal.
func (s *Store) Open(sealed []byte) ([]byte, error) {
	return cryptoprim.Open(s.key, sealed)
}
