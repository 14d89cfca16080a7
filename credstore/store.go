// Package credstore persists small named secrets (tokens, expiry markers)
// for the local user, encrypted at rest. All operations are fail-soft:
// underlying platform errors are logged and reported as false/absent rather
// than raised, so a corrupt or missing entry can never crash a caller.
package credstore

// Store is the contract for the encrypted credential store.
type Store interface {
	// Set writes a secret under key, reporting whether the write succeeded.
	Set(key, value string) bool

	// Get reads a secret, reporting absence for missing, undecryptable or
	// otherwise unreadable entries.
	Get(key string) (string, bool)

	// Remove deletes a secret. It reports true when the key is absent after
	// the call (removed or never present) and false only on a platform
	// error, so removing an absent key is not a failure.
	Remove(key string) bool

	// Exists reports whether a secret is present under key.
	Exists(key string) bool
}
