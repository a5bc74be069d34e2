package services

import (
	"context"
	"fmt"

	"friend-graph-service/internal/models"
	"friend-graph-service/internal/repositories"
)

type UserService struct {
	store repositories.AccountStore
}

// UserDTO is an account without its credentials or relationship sets.
type UserDTO struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

func NewUserService(store repositories.AccountStore) *UserService {
	return &UserService{store: store}
}

func toDTO(account *models.Account) UserDTO {
	return UserDTO{
		ID:             account.ID,
		Username:       account.Username,
		Email:          account.Email,
		ProfilePicture: account.ProfilePicture,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, id string) (*UserDTO, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user := toDTO(account)
	return &user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]UserDTO, error) {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]UserDTO, 0, len(accounts))
	for i := range accounts {
		users = append(users, toDTO(&accounts[i]))
	}
	return users, nil
}

// SetProfilePicture records the stored picture path on the account.
func (s *UserService) SetProfilePicture(ctx context.Context, id, path string) (*UserDTO, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	account.ProfilePicture = path
	if err := s.store.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save profile picture: %w", err)
	}
	user := toDTO(account)
	return &user, nil
}
