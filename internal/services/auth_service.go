package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/auth"
	"friend-graph-service/internal/models"
	"friend-graph-service/internal/repositories"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrMissingField       = errors.New("username, email and password are required")
)

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginResult struct {
	Account     *models.Account
	AccessToken string
	ExpiresAt   time.Time
}

// AuthService registers accounts and exchanges credentials for identity tokens.
type AuthService struct {
	store  repositories.AccountStore
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
	logger logrus.FieldLogger
}

func NewAuthService(store repositories.AccountStore, hasher *auth.PasswordHasher, tokens *auth.TokenManager, logger logrus.FieldLogger) *AuthService {
	return &AuthService{store: store, hasher: hasher, tokens: tokens, logger: logger}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, ErrMissingField
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, repositories.ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrAccountNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		Password:  hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Save(ctx, account); err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	s.logger.WithField("account_id", account.ID).Info("account registered")
	return account, nil
}

// Login returns repositories.ErrAccountNotFound for an unknown email and
// ErrInvalidCredentials for a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	account, err := s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Verify(account.Password, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Account: account, AccessToken: token, ExpiresAt: expiresAt}, nil
}

// Logout revokes the presented token and returns the account it belonged to.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) (*models.Account, error) {
	account, err := s.store.FindByID(ctx, claims.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}
	return account, nil
}
