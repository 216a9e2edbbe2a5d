package password

import (
	"fmt"
	"strings"

	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/password"
	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

var argonParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MiB
	Iterations:  2,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

const (
	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"
)

// Hasher hashes with one scheme and verifies any scheme it recognises by
// the hash prefix, so switching PASSWORD_SCHEME keeps old hashes valid.
type Hasher struct {
	scheme     string
	bcryptCost int
	argon      *argon2id.Params
}

func NewBcryptHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{scheme: SchemeBcrypt, bcryptCost: cost, argon: argonParams}
}

func NewArgon2idHasher() *Hasher {
	return &Hasher{scheme: SchemeArgon2id, bcryptCost: bcrypt.DefaultCost, argon: argonParams}
}

// New picks the implementation named by scheme.
func New(scheme string, bcryptCost int) (*Hasher, error) {
	switch scheme {
	case SchemeBcrypt:
		return NewBcryptHasher(bcryptCost), nil
	case SchemeArgon2id:
		return NewArgon2idHasher(), nil
	default:
		return nil, fmt.Errorf("unknown password scheme %q", scheme)
	}
}

var _ password.Hasher = (*Hasher)(nil)

func (h *Hasher) Hash(plaintext string) (string, error) {
	in := truncate(plaintext)
	switch h.scheme {
	case SchemeArgon2id:
		return argon2id.CreateHash(string(in), h.argon)
	default:
		b, err := bcrypt.GenerateFromPassword(in, h.bcryptCost)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func (h *Hasher) Verify(plaintext, hash string) bool {
	in := truncate(plaintext)
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		ok, err := argon2id.ComparePasswordAndHash(string(in), hash)
		return err == nil && ok
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), in) == nil
	default:
		return false
	}
}

func truncate(plaintext string) []byte {
	b := []byte(plaintext)
	if len(b) > password.MaxInputBytes {
		b = b[:password.MaxInputBytes]
	}
	return b
}
