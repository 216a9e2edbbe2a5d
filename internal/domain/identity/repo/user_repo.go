package repo

import (
	"context"
	"time"

	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/model"
	"github.com/google/uuid"
)

// UserRepo is the persistence boundary for users.
//
// Implementations must enforce uniqueness of username and email themselves:
// Insert returns errors.ErrAlreadyExists when either value collides, even if
// ExistsByUsernameOrEmail reported false a moment earlier.
type UserRepo interface {
	FindByUsernameOrEmail(ctx context.Context, identifier string) (model.User, error)

	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	Insert(ctx context.Context, u model.User) (model.User, error)

	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)

	Ping(ctx context.Context) error
}
