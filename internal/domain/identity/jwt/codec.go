package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the claim set carried by an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
}

type TokenCodec interface {
	// Mint signs a token for subject that expires ttl from now.
	Mint(subject uuid.UUID, ttl time.Duration) (token string, exp time.Time, err error)
	// MintAccess is Mint with the configured access TTL.
	MintAccess(subject uuid.UUID) (token string, exp time.Time, err error)
	// Verify returns the subject of a valid, unexpired token.
	Verify(token string) (uuid.UUID, error)
}
