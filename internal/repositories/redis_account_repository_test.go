package repositories

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friend-graph-service/internal/models"
)

func newRedisRepo(t *testing.T) (*RedisAccountRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisAccountRepository(rdb), mr
}

func TestRedisSaveAndFind(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	account := &models.Account{Username: "alice", Email: "Alice@example.com", Password: "hash"}
	require.NoError(t, repo.Save(ctx, account))
	require.NotEmpty(t, account.ID)

	found, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Username)
	assert.Equal(t, "alice@example.com", found.Email)
	assert.Equal(t, "hash", found.Password)
	assert.Empty(t, found.Friends)

	byEmail, err := repo.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRedisSaveRejectsTakenEmail(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.Account{ID: "a", Email: "same@example.com"}))
	err := repo.Save(ctx, &models.Account{ID: "b", Email: "same@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	// Re-saving the owner is an update, not a conflict.
	require.NoError(t, repo.Save(ctx, &models.Account{ID: "a", Username: "renamed", Email: "same@example.com"}))
	found, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", found.Username)
}

func TestRedisSetOperations(t *testing.T) {
	repo, mr := newRedisRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &models.Account{ID: "a", Email: "a@example.com"}))

	changed, err := repo.AddToSet(ctx, "a", models.FieldFriends, "b")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.AddToSet(ctx, "a", models.FieldFriends, "b")
	require.NoError(t, err)
	assert.False(t, changed)

	members, err := mr.Members("account:a:friends")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	changed, err = repo.RemoveFromSet(ctx, "a", models.FieldFriends, "b")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.RemoveFromSet(ctx, "a", models.FieldFriends, "b")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = repo.AddToSet(ctx, "ghost", models.FieldPendingRequestsReceived, "a")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.False(t, mr.Exists("account:ghost:pendingRequestsReceived"))

	_, err = repo.RemoveFromSet(ctx, "a", models.FieldFriends, "a")
	assert.ErrorIs(t, err, ErrSelfRelation)
}

func TestRedisSaveDoesNotTouchSets(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	account := &models.Account{ID: "a", Email: "a@example.com"}
	require.NoError(t, repo.Save(ctx, account))
	_, err := repo.AddToSet(ctx, "a", models.FieldPendingRequestsReceived, "c")
	require.NoError(t, err)

	account.ProfilePicture = "uploads/a/x.png"
	require.NoError(t, repo.Save(ctx, account))

	found, err := repo.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, found.PendingRequestsReceived)
	assert.Equal(t, "uploads/a/x.png", found.ProfilePicture)
}

func TestRedisList(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &models.Account{ID: "a", Email: "a@example.com"}))
	require.NoError(t, repo.Save(ctx, &models.Account{ID: "b", Email: "b@example.com"}))

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "a", accounts[0].ID)
	assert.Equal(t, "b", accounts[1].ID)
}

func TestRedisPendingRefusedForFriend(t *testing.T) {
	repo, _ := newRedisRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, &models.Account{ID: "a", Email: "a@example.com"}))
	require.NoError(t, repo.Save(ctx, &models.Account{ID: "b", Email: "b@example.com"}))

	_, err := repo.AddToSet(ctx, "b", models.FieldFriends, "a")
	require.NoError(t, err)

	changed, err := repo.AddToSet(ctx, "b", models.FieldPendingRequestsReceived, "a")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.AddToSet(ctx, "a", models.FieldPendingRequestsReceived, "b")
	require.NoError(t, err)
	assert.True(t, changed, "only the friends set of the target account is consulted")

	b, err := repo.FindByID(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, b.PendingRequestsReceived)
}
