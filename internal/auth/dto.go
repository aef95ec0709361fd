package auth

import (
	"github.com/danandika/civic-report/internal/core/common/validation"
	"github.com/danandika/civic-report/internal/user"
)

type SignupDTO struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (d *SignupDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("email", d.Email).Required().Email()
	validator.Field("name", d.Name).Required().MinLength(2).MaxLength(100)
	validator.Field("password", d.Password).Required().MinLength(8).MaxLength(72)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d *LoginDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("email", d.Email).Required().Email()
	validator.Field("password", d.Password).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d *RefreshTokenDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("refresh_token", d.RefreshToken).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type SignupResponse struct {
	User    *user.User `json:"user"`
	Created bool       `json:"created"`
	Tokens  AuthTokens `json:"tokens"`
}
