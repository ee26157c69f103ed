package store

import "errors"

var (
	// ErrWrongPassword is returned by Open when the machine-id cell
	// exists but fails to unseal or does not match the current host,
	// meaning either the password is wrong or the database was
	// tampered with. The two cases are indistinguishable and are never
	// reported differently to the caller.
	ErrWrongPassword = errors.New("store: wrong password or tampered database")

	// ErrNoSuchConversation is returned when a query or delete targets
	// a conversation row that does not exist.
	ErrNoSuchConversation = errors.New("store: no such conversation")
)
