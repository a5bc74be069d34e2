package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"friend-graph-service/internal/models"
)

// MemoryAccountRepository keeps accounts in process. It has no Transactor, so
// multi-record changes go through the same sequential path as the Redis store.
type MemoryAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	order    []string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{accounts: make(map[string]*models.Account)}
}

func (r *MemoryAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account.Clone(), nil
}

func (r *MemoryAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = normalizeEmail(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if r.accounts[id].Email == email {
			return r.accounts[id].Clone(), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *MemoryAccountRepository) List(ctx context.Context) ([]models.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]models.Account, 0, len(r.order))
	for _, id := range r.order {
		accounts = append(accounts, *r.accounts[id].Clone())
	}
	return accounts, nil
}

func (r *MemoryAccountRepository) AddToSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	if err := checkSetUpdate(id, field, value); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return false, ErrAccountNotFound
	}
	if field == models.FieldPendingRequestsReceived && account.IsFriendOf(value) {
		return false, nil
	}
	set := fieldRef(account, field)
	for _, v := range *set {
		if v == value {
			return false, nil
		}
	}
	*set = append(*set, value)
	return true, nil
}

func (r *MemoryAccountRepository) RemoveFromSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	if err := checkSetUpdate(id, field, value); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return false, ErrAccountNotFound
	}
	set := fieldRef(account, field)
	for i, v := range *set {
		if v == value {
			*set = append((*set)[:i:i], (*set)[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryAccountRepository) Save(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.Email = normalizeEmail(account.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, other := range r.accounts {
		if id != account.ID && other.Email == account.Email {
			return ErrEmailTaken
		}
	}

	existing, ok := r.accounts[account.ID]
	if !ok {
		stored := account.Clone()
		stored.PendingRequestsReceived = nil
		stored.Friends = nil
		r.accounts[account.ID] = stored
		r.order = append(r.order, account.ID)
		return nil
	}

	existing.Username = account.Username
	existing.Email = account.Email
	existing.Password = account.Password
	existing.ProfilePicture = account.ProfilePicture
	return nil
}

func fieldRef(account *models.Account, field models.SetField) *[]string {
	if field == models.FieldFriends {
		return &account.Friends
	}
	return &account.PendingRequestsReceived
}
