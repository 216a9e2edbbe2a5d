// Package password defines the credential hashing contract used by the identity service.
package password

// MaxInputBytes is the bcrypt input limit. Hashers cut every scheme's input
// here so a password hashes and verifies the same way under either scheme.
const MaxInputBytes = 72

type Hasher interface {
	// Hash returns a salted one-way hash of plaintext.
	Hash(plaintext string) (string, error)

	// Verify reports whether plaintext matches hash. A malformed hash is a mismatch.
	Verify(plaintext, hash string) bool
}
