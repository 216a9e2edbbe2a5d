package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Miraines/MoonyAndStarry/identity-service/internal/adapters/transport/http/dto"
	customErrors "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/errors"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/jwt"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/model"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/password"
	repo "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/repo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type identityService struct {
	userRepo repo.UserRepo
	hasher   password.Hasher
	codec    jwt.TokenCodec
	v        *validator.Validate
	now      func() time.Time

	// verified when the identifier is unknown so both failure paths cost a hash check
	dummyHash string
}

type Service interface {
	Register(context.Context, dto.RegisterDTO) (model.User, error)
	// Authenticate reports ok=false for an unknown identifier and for a wrong
	// password alike; err is reserved for store or signing failures.
	Authenticate(ctx context.Context, identifier, plaintext string) (token model.Token, ok bool, err error)
	Profile(ctx context.Context, accessToken string) (model.PublicUser, error)
}

type Option func(*identityService)

func WithClock(now func() time.Time) Option {
	return func(s *identityService) { s.now = now }
}

func New(
	ur repo.UserRepo,
	h password.Hasher,
	tc jwt.TokenCodec,
	v *validator.Validate,
	opts ...Option,
) (Service, error) {
	if v == nil {
		v = NewValidator()
	}
	s := &identityService{
		userRepo: ur, hasher: h, codec: tc, v: v, now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	dummy, err := h.Hash(uuid.NewString())
	if err != nil {
		return nil, customErrors.WrapInternal(err, "dummy hash")
	}
	s.dummyHash = dummy
	return s, nil
}

func (a *identityService) Register(ctx context.Context, in dto.RegisterDTO) (model.User, error) {
	in = NormalizeRegistration(in)
	if err := ValidateRegistration(a.v, in); err != nil {
		return model.User{}, err
	}

	// advisory only: Insert below is what enforces uniqueness
	exists, err := a.userRepo.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return model.User{}, persistence(err, "ExistsByUsernameOrEmail")
	}
	if exists {
		return model.User{}, customErrors.ErrAlreadyExists
	}

	passwordHash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, customErrors.WrapInternal(err, "Register")
	}

	now := a.now().UTC()
	user := model.User{
		ID:           uuid.New(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := a.userRepo.Insert(ctx, user)
	if err != nil {
		if errors.Is(err, customErrors.ErrAlreadyExists) {
			return model.User{}, customErrors.ErrAlreadyExists
		}
		return model.User{}, persistence(err, "Insert")
	}
	return created, nil
}

func (a *identityService) Authenticate(ctx context.Context, identifier, plaintext string) (model.Token, bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || plaintext == "" {
		return model.Token{}, false, nil
	}

	user, err := a.userRepo.FindByUsernameOrEmail(ctx, identifier)
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		a.hasher.Verify(plaintext, a.dummyHash)
		return model.Token{}, false, nil
	case err != nil:
		return model.Token{}, false, persistence(err, "FindByUsernameOrEmail")
	}

	if !a.hasher.Verify(plaintext, user.PasswordHash) {
		return model.Token{}, false, nil
	}

	now := a.now().UTC()
	if err := a.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return model.Token{}, false, persistence(err, "UpdateLastLogin")
	}
	user.LastLogin = &now
	user.UpdatedAt = now

	at, exp, err := a.codec.MintAccess(user.ID)
	if err != nil {
		return model.Token{}, false, customErrors.WrapInternal(err, "MintAccess")
	}

	return model.Token{
		AccessToken: at,
		TokenType:   model.TokenTypeBearer,
		ExpiresAt:   exp,
		User:        user.Public(),
	}, true, nil
}

func (a *identityService) Profile(ctx context.Context, accessToken string) (model.PublicUser, error) {
	uid, err := a.codec.Verify(accessToken)
	if err != nil {
		return model.PublicUser{}, customErrors.ErrInvalidToken
	}

	user, err := a.userRepo.GetByID(ctx, uid)
	switch {
	case errors.Is(err, customErrors.ErrNotFound):
		return model.PublicUser{}, customErrors.ErrInvalidToken
	case err != nil:
		return model.PublicUser{}, persistence(err, "GetByID")
	}
	return user.Public(), nil
}

func persistence(err error, op string) error {
	if customErrors.IsPersistence(err) {
		return err
	}
	return customErrors.WrapPersistence(err, op)
}
