package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"friend-graph-service/internal/models"
	"friend-graph-service/internal/rabbitmq"
	"friend-graph-service/internal/repositories"
)

// MockAccountStore mocks the account store for services and handlers.
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	var account *models.Account
	if val := args.Get(0); val != nil {
		account = val.(*models.Account)
	}
	return account, args.Error(1)
}

func (m *MockAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	args := m.Called(ctx, email)
	var account *models.Account
	if val := args.Get(0); val != nil {
		account = val.(*models.Account)
	}
	return account, args.Error(1)
}

func (m *MockAccountStore) List(ctx context.Context) ([]models.Account, error) {
	args := m.Called(ctx)
	var accounts []models.Account
	if val := args.Get(0); val != nil {
		accounts = val.([]models.Account)
	}
	return accounts, args.Error(1)
}

func (m *MockAccountStore) AddToSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	args := m.Called(ctx, id, field, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) RemoveFromSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	args := m.Called(ctx, id, field, value)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) Save(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

var _ repositories.AccountStore = (*MockAccountStore)(nil)

// MockPublisher mocks RabbitMQ publisher behavior for events and telemetry.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ rabbitmq.Publisher = (*MockPublisher)(nil)
