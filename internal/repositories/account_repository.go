package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"friend-graph-service/internal/models"
)

const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

const accountColumns = `id, username, email, password, profile_picture, pending_requests_received, friends, created_at`

type accountRow struct {
	ID                      string         `db:"id"`
	Username                string         `db:"username"`
	Email                   string         `db:"email"`
	Password                string         `db:"password"`
	ProfilePicture          sql.NullString `db:"profile_picture"`
	PendingRequestsReceived pq.StringArray `db:"pending_requests_received"`
	Friends                 pq.StringArray `db:"friends"`
	CreatedAt               time.Time      `db:"created_at"`
}

func (r accountRow) toModel() *models.Account {
	return &models.Account{
		ID:                      r.ID,
		Username:                r.Username,
		Email:                   r.Email,
		Password:                r.Password,
		ProfilePicture:          r.ProfilePicture.String,
		PendingRequestsReceived: []string(r.PendingRequestsReceived),
		Friends:                 []string(r.Friends),
		CreatedAt:               r.CreatedAt,
	}
}

type AccountRepository struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewAccountRepository returns a Postgres backed store. Set updates are single UPDATE
// statements using array_append/array_remove guarded by ANY(), so concurrent writers
// never lose each other's elements.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db, q: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *AccountRepository) List(ctx context.Context) ([]models.Account, error) {
	var rows []accountRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`); err != nil {
		return nil, err
	}
	accounts := make([]models.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, *row.toModel())
	}
	return accounts, nil
}

func (r *AccountRepository) AddToSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	col, err := setColumn(id, field, value)
	if err != nil {
		return false, err
	}
	guard := ""
	if field == models.FieldPendingRequestsReceived {
		guard = " AND NOT ($2 = ANY(friends))"
	}
	query := fmt.Sprintf(`
UPDATE accounts SET %[1]s = array_append(%[1]s, $2)
WHERE id=$1 AND NOT ($2 = ANY(%[1]s))%[2]s
`, col, guard)
	return r.updateSet(ctx, query, id, value)
}

func (r *AccountRepository) RemoveFromSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	col, err := setColumn(id, field, value)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
UPDATE accounts SET %[1]s = array_remove(%[1]s, $2)
WHERE id=$1 AND $2 = ANY(%[1]s)
`, col)
	return r.updateSet(ctx, query, id, value)
}

func (r *AccountRepository) Save(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))

	err := sqlx.GetContext(ctx, r.q, &account.CreatedAt, `
INSERT INTO accounts (id, username, email, password, profile_picture)
VALUES ($1, $2, $3, $4, NULLIF($5, ''))
ON CONFLICT (id) DO UPDATE SET
	username=EXCLUDED.username,
	email=EXCLUDED.email,
	password=EXCLUDED.password,
	profile_picture=EXCLUDED.profile_picture
RETURNING created_at
`, account.ID, account.Username, account.Email, account.Password, account.ProfilePicture)
	return mapPQError(err)
}

// WithinTx runs fn against a store bound to a single transaction.
func (r *AccountRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, store AccountStore) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, &AccountRepository{db: r.db, q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *AccountRepository) findOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	var row accountRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *AccountRepository) updateSet(ctx context.Context, query, id, value string) (bool, error) {
	res, err := r.q.ExecContext(ctx, query, id, value)
	if err != nil {
		return false, mapPQError(err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, r.q, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)`, id); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrAccountNotFound
	}
	return false, nil
}

func setColumn(id string, field models.SetField, value string) (string, error) {
	if err := checkSetUpdate(id, field, value); err != nil {
		return "", err
	}
	if field == models.FieldFriends {
		return "friends", nil
	}
	return "pending_requests_received", nil
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return ErrEmailTaken
		case pqCheckViolation:
			return ErrSelfRelation
		}
	}
	return err
}
