package cryptoprim

import "crypto/rand"

// overwriteRandom fills b with fresh random bytes in place.
func overwriteRandom(b []byte) error {
	_, err := rand.Read(b)
	return err
}
