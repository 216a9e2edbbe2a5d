package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashers() map[string]*Hasher {
	return map[string]*Hasher{
		SchemeBcrypt:   NewBcryptHasher(bcrypt.MinCost),
		SchemeArgon2id: NewArgon2idHasher(),
	}
}

func TestHasher_HashAndVerify(t *testing.T) {
	for name, h := range hashers() {
		t.Run(name, func(t *testing.T) {
			pwd := "StrongPass123"
			hash, err := h.Hash(pwd)
			require.NoError(t, err)
			assert.NotEmpty(t, hash)
			assert.NotEqual(t, pwd, hash)

			assert.True(t, h.Verify(pwd, hash))
			assert.False(t, h.Verify("", hash))
		})
	}
}

func TestHasher_SingleCharacterMutationFails(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	pwd := "StrongPass123"
	hash, err := h.Hash(pwd)
	require.NoError(t, err)

	for i := range pwd {
		mutated := []byte(pwd)
		mutated[i] ^= 0x01
		assert.False(t, h.Verify(string(mutated), hash), "mutation at %d", i)
	}
	assert.False(t, h.Verify(pwd+"x", hash))
	assert.False(t, h.Verify(pwd[:len(pwd)-1], hash))
}

func TestHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	a, err := h.Hash("StrongPass123")
	require.NoError(t, err)
	b, err := h.Hash("StrongPass123")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHasher_TruncatesAt72Bytes(t *testing.T) {
	for name, h := range hashers() {
		t.Run(name, func(t *testing.T) {
			long := strings.Repeat("a", 72)
			hash, err := h.Hash(long + "tail-one")
			require.NoError(t, err)

			// bytes past the limit never reach the algorithm
			assert.True(t, h.Verify(long+"tail-one", hash))
			assert.True(t, h.Verify(long+"other-tail", hash))
			assert.True(t, h.Verify(long, hash))
			assert.False(t, h.Verify(long[:71], hash))
		})
	}
}

func TestHasher_MalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	for _, bad := range []string{"", "invalid_hash", "$2a$", "$2b$04$short", "$argon2id$v=19$broken", "plain"} {
		assert.False(t, h.Verify("StrongPass123", bad), "hash %q", bad)
	}
}

func TestHasher_VerifiesOtherScheme(t *testing.T) {
	oldHash, err := NewArgon2idHasher().Hash("StrongPass123")
	require.NoError(t, err)

	h := NewBcryptHasher(bcrypt.MinCost)
	assert.True(t, h.Verify("StrongPass123", oldHash))
	assert.False(t, h.Verify("StrongPass124", oldHash))
}

func TestHasher_CustomCost(t *testing.T) {
	h := NewBcryptHasher(6)
	hash, err := h.Hash("StrongPass123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 6, cost)

	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).bcryptCost)
}

func TestNew(t *testing.T) {
	h, err := New(SchemeArgon2id, 0)
	require.NoError(t, err)
	hash, err := h.Hash("StrongPass123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	_, err = New("md5", 0)
	assert.Error(t, err)
}
