package auth

import (
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	errors "github.com/danandika/civic-report/internal"
	"github.com/danandika/civic-report/internal/user"
)

// UserDirectory is the slice of the user service that auth consumes: signup
// goes through the idempotent Register and login reads the stored hash.
type UserDirectory interface {
	Register(dto user.RegisterDTO) (*user.User, bool, error)
	GetByEmail(email string) (*user.User, error)
}

type Service struct {
	users          UserDirectory
	tokenGenerator TokenGenerator
	bcryptCost     int
	logger         *slog.Logger
}

func NewService(users UserDirectory, tokenGen TokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:          users,
		tokenGenerator: tokenGen,
		bcryptCost:     bcryptCost,
		logger:         logger,
	}
}

// Signup registers an account and immediately issues tokens. Registration is
// idempotent on email, but a repeat signup must still present the original
// password to get tokens back.
func (s *Service) Signup(dto SignupDTO) (*SignupResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		s.logger.Error("password hashing failed", "error", err)
		return nil, errors.NewInternalError("failed to process password", err)
	}

	u, created, err := s.users.Register(user.RegisterDTO{
		Email:        dto.Email,
		Name:         dto.Name,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}

	if !created {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
			s.logger.Warn("signup replay with wrong password", "email", dto.Email)
			return nil, errors.ErrInvalidCredentials
		}
	}

	tokens, err := s.issueTokens(u)
	if err != nil {
		return nil, err
	}

	return &SignupResponse{User: u, Created: created, Tokens: tokens}, nil
}

// Authenticate validates credentials and returns a token pair.
func (s *Service) Authenticate(dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.users.GetByEmail(dto.Email)
	if err != nil {
		// Same response as a bad password so emails cannot be probed.
		return AuthTokens{}, errors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		return AuthTokens{}, errors.ErrInvalidCredentials
	}

	return s.issueTokens(u)
}

// RefreshTokens validates a refresh token and rotates the pair. The role is
// re-read from storage so a demotion takes effect on the next refresh.
func (s *Service) RefreshTokens(refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateToken(refreshToken)
	if err != nil {
		return AuthTokens{}, s.mapTokenError(err)
	}

	u, err := s.users.GetByEmail(claims.Email)
	if err != nil {
		return AuthTokens{}, errors.ErrInvalidToken
	}

	return s.issueTokens(u)
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.tokenGenerator.ValidateToken(tokenString)
	if err != nil {
		return nil, s.mapTokenError(err)
	}
	return claims, nil
}

func (s *Service) issueTokens(u *user.User) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(u.Email, u.Role)
	if err != nil {
		s.logger.Error("access token generation failed", "error", err, "email", u.Email)
		return AuthTokens{}, errors.NewInternalError("failed to generate token", err)
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(u.Email, u.Role)
	if err != nil {
		s.logger.Error("refresh token generation failed", "error", err, "email", u.Email)
		return AuthTokens{}, errors.NewInternalError("failed to generate token", err)
	}

	return AuthTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *Service) mapTokenError(err error) error {
	switch err {
	case ErrTokenExpired:
		return errors.ErrTokenExpired
	default:
		return errors.ErrInvalidToken
	}
}
