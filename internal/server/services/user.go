// Package services contains server-side business logic: the task query and
// command operations, account management and avatar uploads. Services take a
// RepositoryManager and vend repositories per call, so the same code runs on
// PostgreSQL and on the in-memory store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tasktracker/internal/common"
	"github.com/dmitrijs2005/tasktracker/internal/cryptox"
	"github.com/dmitrijs2005/tasktracker/internal/server/auth"
	"github.com/dmitrijs2005/tasktracker/internal/server/models"
	"github.com/dmitrijs2005/tasktracker/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tasktracker/internal/server/validation"
	"github.com/google/uuid"
)

// RegisterInput is the body of a sign-up request.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput changes only the non-empty fields.
type UpdateProfileInput struct {
	Name   string `json:"name" validate:"omitempty,min=2,max=50"`
	Avatar string `json:"avatar" validate:"omitempty,http_url,max=2048"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// UserService handles accounts:
// - Register / Login: create or verify credentials and mint a token
// - Authenticate: resolve a bearer token to an existing user
// - Profile / UpdateProfile / ChangePassword: self-service account edits
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenIssuer
	validator   *validation.Validator
	hashCost    int
	now         func() time.Time
	newID       func() string

	// dummyHash is compared against when the email is unknown so that a
	// failed login costs the same whether or not the account exists.
	dummyHash func() string
}

// NewUserService constructs a UserService. hashCost is the bcrypt work factor.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenIssuer, v *validation.Validator, hashCost int) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		validator:   v,
		hashCost:    hashCost,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
		dummyHash: sync.OnceValue(func() string {
			h, _ := cryptox.HashPassword(uuid.NewString(), hashCost)
			return h
		}),
	}
}

func passwordTooLong(field, password string) error {
	if len(password) > cryptox.MaxPasswordBytes {
		return common.NewValidationError(field, fmt.Sprintf("Password cannot be more than %d bytes", cryptox.MaxPasswordBytes))
	}
	return nil
}

func (s *UserService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: sign token: %w", common.ErrorInternal, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Register creates an account and signs the user in.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	if err := passwordTooLong("password", in.Password); err != nil {
		return nil, err
	}

	hash, err := cryptox.HashPassword(in.Password, s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", common.ErrorInternal, err)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		ID:           s.newID(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repomanager.Users(s.db).Create(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// Login verifies credentials. Unknown email and wrong password both yield
// common.ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.CheckPassword(s.dummyHash(), in.Password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	if !cryptox.CheckPassword(user.PasswordHash, in.Password) {
		return nil, common.ErrInvalidCredentials
	}
	return s.issue(user)
}

// Authenticate verifies token and loads its user. Every failure matches
// common.ErrorUnauthorized; the wrapped cause says why.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", common.ErrorUnauthorized)
	}

	userID, err := s.tokens.Verify(token, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: user not found", common.ErrorUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

// Profile returns the caller's account.
func (s *UserService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: user not found", common.ErrorUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile changes name and/or avatar URL.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Avatar = strings.TrimSpace(in.Avatar)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != "" {
		user.Name = in.Name
	}
	if in.Avatar != "" {
		user.Avatar = in.Avatar
	}
	user.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	if err := s.repomanager.Users(s.db).Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one. A
// wrong current password is reported as a validation failure on that field.
func (s *UserService) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput) error {
	if err := s.validator.Struct(in); err != nil {
		return err
	}
	if err := passwordTooLong("newPassword", in.NewPassword); err != nil {
		return err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}

	if !cryptox.CheckPassword(user.PasswordHash, in.CurrentPassword) {
		return common.NewValidationError("currentPassword", "Current password is incorrect")
	}

	hash, err := cryptox.HashPassword(in.NewPassword, s.hashCost)
	if err != nil {
		return fmt.Errorf("%w: hash password: %w", common.ErrorInternal, err)
	}

	user.PasswordHash = hash
	user.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	return s.repomanager.Users(s.db).Update(ctx, user)
}
