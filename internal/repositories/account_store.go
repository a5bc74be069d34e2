package repositories

import (
	"context"
	"errors"

	"friend-graph-service/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
	ErrSelfRelation    = errors.New("account cannot relate to itself")
	ErrUnknownField    = errors.New("unknown relationship field")
)

// AccountStore persists account records. AddToSet and RemoveFromSet are single-element
// atomic updates on one account's relationship set; they report whether the set
// actually changed. AddToSet on the pending field is a no-op when the value is already a
// friend of the account. Save writes scalar fields only and never touches the sets.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	AddToSet(ctx context.Context, id string, field models.SetField, value string) (bool, error)
	RemoveFromSet(ctx context.Context, id string, field models.SetField, value string) (bool, error)
	Save(ctx context.Context, account *models.Account) error
}

// Transactor is implemented by stores that can commit several mutations atomically.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error
}

func checkSetUpdate(id string, field models.SetField, value string) error {
	if !field.Valid() {
		return ErrUnknownField
	}
	if id == value {
		return ErrSelfRelation
	}
	return nil
}
