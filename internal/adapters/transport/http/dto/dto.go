package dto

import (
	customErrors "github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/errors"
	"github.com/Miraines/MoonyAndStarry/identity-service/internal/domain/identity/model"
)

type RegisterDTO struct {
	Username  string `json:"username"   validate:"required,username"`
	Email     string `json:"email"      validate:"required,email,max=120"`
	Password  string `json:"password"   validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"max=50"`
	LastName  string `json:"last_name"  validate:"max=50"`
}

// LoginDTO accepts either a username or an email in Username. It binds from
// JSON and from an OAuth2 password-grant form alike.
type LoginDTO struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type ErrorResponse struct {
	Error      string                        `json:"error"`
	Violations []customErrors.FieldViolation `json:"violations,omitempty"`
}

type TokenResponse = model.Token

type UserResponse = model.PublicUser
