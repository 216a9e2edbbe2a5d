package jwt

import (
	"crypto/rsa"
	"errors"
	"os"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/errors"
	jwt2 "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/jwt"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/infra/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultAccessTTL = 30 * time.Minute

// Options is the signing configuration. Exactly one key set must match Method.
type Options struct {
	Method     jwt.SigningMethod
	Secret     []byte
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	AccessTTL  time.Duration
	Issuer     string
	Audience   string
	Now        func() time.Time
}

type JwtUtilImpl struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	accessTTL time.Duration
	issuer    string
	audience  string
	now       func() time.Time
}

var _ jwt2.TokenCodec = (*JwtUtilImpl)(nil)

func New(opts Options) (*JwtUtilImpl, error) {
	j := &JwtUtilImpl{
		method:    opts.Method,
		accessTTL: opts.AccessTTL,
		issuer:    opts.Issuer,
		audience:  opts.Audience,
		now:       opts.Now,
	}
	if j.accessTTL <= 0 {
		j.accessTTL = DefaultAccessTTL
	}
	if j.now == nil {
		j.now = time.Now
	}

	switch opts.Method {
	case jwt.SigningMethodHS256:
		if len(opts.Secret) == 0 {
			return nil, customErrors.WrapInternal(errors.New("empty secret"), "NewJWTUtil")
		}
		j.signKey, j.verifyKey = opts.Secret, opts.Secret
	case jwt.SigningMethodRS256:
		if opts.PrivateKey == nil || opts.PublicKey == nil {
			return nil, customErrors.WrapInternal(errors.New("missing RSA key"), "NewJWTUtil")
		}
		j.signKey, j.verifyKey = opts.PrivateKey, opts.PublicKey
	default:
		return nil, customErrors.WrapInternal(errors.New("unsupported signing method"), "NewJWTUtil")
	}
	return j, nil
}

// NewJWTUtil builds the codec from process configuration, reading PEM keys for RS256.
func NewJWTUtil(cfg *config.Config) (*JwtUtilImpl, error) {
	opts := Options{
		AccessTTL: cfg.AccessTokenTTL,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
	}

	switch cfg.JWTAlgorithm {
	case config.AlgRS256:
		privPem, err := os.ReadFile(cfg.JWTPrivateKeyPath)
		if err != nil {
			return nil, customErrors.WrapInternal(err, "read private key")
		}
		privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privPem)
		if err != nil {
			return nil, customErrors.WrapInternal(err, "parse private key")
		}

		pubPem, err := os.ReadFile(cfg.JWTPublicKeyPath)
		if err != nil {
			return nil, customErrors.WrapInternal(err, "read public key")
		}
		pubKey, err := jwt.ParseRSAPublicKeyFromPEM(pubPem)
		if err != nil {
			return nil, customErrors.WrapInternal(err, "parse public key")
		}
		opts.Method, opts.PrivateKey, opts.PublicKey = jwt.SigningMethodRS256, privKey, pubKey
	default:
		opts.Method, opts.Secret = jwt.SigningMethodHS256, []byte(cfg.JWTSecret)
	}

	return New(opts)
}

func (j *JwtUtilImpl) MintAccess(subject uuid.UUID) (string, time.Time, error) {
	return j.Mint(subject, j.accessTTL)
}

func (j *JwtUtilImpl) Mint(subject uuid.UUID, ttl time.Duration) (token string, exp time.Time, err error) {
	now := j.now()
	exp = now.Add(ttl)
	// exp is encoded in whole seconds; round up so a positive ttl never
	// lands before now
	if ttl > 0 {
		if t := exp.Truncate(time.Second); t.Before(exp) {
			exp = t.Add(time.Second)
		}
	}

	claims := jwt2.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if j.audience != "" {
		claims.Audience = jwt.ClaimStrings{j.audience}
	}

	signed, err := jwt.NewWithClaims(j.method, claims).SignedString(j.signKey)
	if err != nil {
		return "", time.Time{}, customErrors.WrapInternal(err, "sign access token")
	}

	return signed, claims.ExpiresAt.Time, nil
}

func (j *JwtUtilImpl) Verify(raw string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}

	token, err := jwt.ParseWithClaims(raw, &jwt2.AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.method.Alg() {
			return nil, customErrors.ErrInvalidToken
		}
		return j.verifyKey, nil
	}, opts...)

	if err != nil || !token.Valid {
		return uuid.Nil, customErrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt2.AccessClaims)
	if !ok {
		return uuid.Nil, customErrors.ErrInvalidToken
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil || uid == uuid.Nil {
		return uuid.Nil, customErrors.ErrInvalidToken
	}
	return uid, nil
}
