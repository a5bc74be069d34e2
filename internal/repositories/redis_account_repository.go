package repositories

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"friend-graph-service/internal/models"
)

const accountsIndexKey = "accounts"

// Both scripts return -1 when the account hash is missing, otherwise the SADD/SREM count.
// KEYS[3] of the add script is the friends set; a pending entry for a friend is refused.
var (
	addToSetScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
if KEYS[3] ~= KEYS[2] and redis.call('SISMEMBER', KEYS[3], ARGV[1]) == 1 then
	return 0
end
return redis.call('SADD', KEYS[2], ARGV[1])
`)
	removeFromSetScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('SREM', KEYS[2], ARGV[1])
`)
)

type RedisAccountRepository struct {
	rdb redis.UniversalClient
}

// NewRedisAccountRepository stores each account as a hash plus one Redis set per
// relationship field, so membership changes map directly onto SADD/SREM.
func NewRedisAccountRepository(rdb redis.UniversalClient) *RedisAccountRepository {
	return &RedisAccountRepository{rdb: rdb}
}

func accountKey(id string) string {
	return "account:" + id
}

func setKey(id string, field models.SetField) string {
	return "account:" + id + ":" + string(field)
}

func emailKey(email string) string {
	return "account:email:" + email
}

func (r *RedisAccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	var (
		hash    *redis.MapStringStringCmd
		pending *redis.StringSliceCmd
		friends *redis.StringSliceCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hash = pipe.HGetAll(ctx, accountKey(id))
		pending = pipe.SMembers(ctx, setKey(id, models.FieldPendingRequestsReceived))
		friends = pipe.SMembers(ctx, setKey(id, models.FieldFriends))
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := hash.Val()
	if len(fields) == 0 {
		return nil, ErrAccountNotFound
	}

	account := &models.Account{
		ID:                      id,
		Username:                fields["username"],
		Email:                   fields["email"],
		Password:                fields["password"],
		ProfilePicture:          fields["profile_picture"],
		PendingRequestsReceived: sorted(pending.Val()),
		Friends:                 sorted(friends.Val()),
	}
	if created, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		account.CreatedAt = created
	}
	return account, nil
}

func (r *RedisAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	id, err := r.rdb.Get(ctx, emailKey(normalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *RedisAccountRepository) List(ctx context.Context) ([]models.Account, error) {
	ids, err := r.rdb.SMembers(ctx, accountsIndexKey).Result()
	if err != nil {
		return nil, err
	}

	accounts := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		account, err := r.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				continue
			}
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (r *RedisAccountRepository) AddToSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	return r.runSetScript(ctx, addToSetScript, id, field, value, setKey(id, models.FieldFriends))
}

func (r *RedisAccountRepository) RemoveFromSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	return r.runSetScript(ctx, removeFromSetScript, id, field, value)
}

func (r *RedisAccountRepository) Save(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.Email = normalizeEmail(account.Email)

	claimed, err := r.rdb.SetNX(ctx, emailKey(account.Email), account.ID, 0).Result()
	if err != nil {
		return err
	}
	if !claimed {
		owner, err := r.rdb.Get(ctx, emailKey(account.Email)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if owner != account.ID {
			return ErrEmailTaken
		}
	}

	previous, err := r.rdb.HGet(ctx, accountKey(account.ID), "email").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, accountKey(account.ID), map[string]any{
			"id":              account.ID,
			"username":        account.Username,
			"email":           account.Email,
			"password":        account.Password,
			"profile_picture": account.ProfilePicture,
			"created_at":      account.CreatedAt.Format(time.RFC3339Nano),
		})
		pipe.SAdd(ctx, accountsIndexKey, account.ID)
		if previous != "" && previous != account.Email {
			pipe.Del(ctx, emailKey(previous))
		}
		return nil
	})
	return err
}

func (r *RedisAccountRepository) runSetScript(ctx context.Context, script *redis.Script, id string, field models.SetField, value string, extraKeys ...string) (bool, error) {
	if err := checkSetUpdate(id, field, value); err != nil {
		return false, err
	}
	keys := append([]string{accountKey(id), setKey(id, field)}, extraKeys...)
	n, err := script.Run(ctx, r.rdb, keys, value).Int()
	if err != nil {
		return false, err
	}
	if n < 0 {
		return false, ErrAccountNotFound
	}
	return n > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sorted(values []string) []string {
	sort.Strings(values)
	return values
}
