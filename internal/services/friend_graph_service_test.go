package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"friend-graph-service/internal/graph"
	"friend-graph-service/internal/mocks"
	"friend-graph-service/internal/models"
	"friend-graph-service/internal/repositories"
	"friend-graph-service/internal/telemetry"
)

func newMemoryService(t *testing.T, ids ...string) (*FriendGraphService, *repositories.MemoryAccountRepository) {
	t.Helper()
	store := repositories.NewMemoryAccountRepository()
	seedAccounts(t, store, ids...)
	logger, _ := logtest.NewNullLogger()
	return NewFriendGraphService(store, nil, nil, logger), store
}

func seedAccounts(t *testing.T, store repositories.AccountStore, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, store.Save(context.Background(), &models.Account{
			ID:       id,
			Username: "user-" + id,
			Email:    id + "@example.com",
			Password: "hash",
		}))
	}
}

func load(t *testing.T, store repositories.AccountStore, id string) *models.Account {
	t.Helper()
	account, err := store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return account
}

func ids(profiles []models.PublicProfile) []string {
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.ID)
	}
	return out
}

func TestSendRequestRecordsPendingOnReceiverOnly(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()

	res, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalSent, res.Signal)
	assert.Equal(t, models.PublicProfile{ID: "b", Username: "user-b"}, res.Target)

	assert.Equal(t, []string{"a"}, load(t, store, "b").PendingRequestsReceived)
	assert.Empty(t, load(t, store, "a").PendingRequestsReceived)
}

func TestSendRequestIsIdempotent(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()

	first, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)
	second, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)

	assert.Equal(t, graph.SignalSent, first.Signal)
	assert.Equal(t, graph.SignalAlreadyRequested, second.Signal)
	assert.Equal(t, []string{"a"}, load(t, store, "b").PendingRequestsReceived)
}

func TestSendRequestToSelf(t *testing.T) {
	store := new(mocks.MockAccountStore)
	svc := NewFriendGraphService(store, nil, nil, logrus.New())

	res, err := svc.SendRequest(context.Background(), "a", "a")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalSelfReference, res.Signal)
	store.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestSendRequestUnknownAccount(t *testing.T) {
	svc, _ := newMemoryService(t, "a")

	res, err := svc.SendRequest(context.Background(), "a", "ghost")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalNotFound, res.Signal)
}

func TestReciprocalRequestDoesNotFlipDirection(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)

	res, err := svc.SendRequest(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalReciprocalPending, res.Signal)
	assert.Equal(t, []string{"a"}, load(t, store, "b").PendingRequestsReceived)
	assert.Empty(t, load(t, store, "a").PendingRequestsReceived)
}

func TestFriendshipRoundTrip(t *testing.T) {
	svc, _ := newMemoryService(t, "u1", "u2")
	ctx := context.Background()

	sent, err := svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalSent, sent.Signal)

	requests, err := svc.ListFriendRequests(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalListed, requests.Signal)
	assert.Equal(t, []models.PublicProfile{{ID: "u1", Username: "user-u1"}}, requests.Accounts)

	resolved, err := svc.ResolveRequest(ctx, "u2", "u1", graph.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, graph.SignalFriends, resolved.Signal)
	assert.Equal(t, "u2", resolved.Resolver.ID)
	assert.Equal(t, "u1", resolved.Sender.ID)

	friends1, err := svc.ListFriends(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, ids(friends1.Accounts))
	friends2, err := svc.ListFriends(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids(friends2.Accounts))

	removed, err := svc.RemoveFriend(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalRemoved, removed.Signal)
	assert.True(t, removed.NoFriendsLeft)

	friends1, err = svc.ListFriends(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, friends1.Accounts)
	assert.NotNil(t, friends1.Accounts)
	friends2, err = svc.ListFriends(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, friends2.Accounts)
}

func TestRejectLeavesNoResidue(t *testing.T) {
	svc, _ := newMemoryService(t, "u1", "u2")
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)

	res, err := svc.ResolveRequest(ctx, "u2", "u1", graph.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, graph.SignalRejected, res.Signal)

	for _, list := range []func(context.Context, string) (ListResult, error){svc.ListFriends, svc.ListFriendRequests} {
		for _, id := range []string{"u1", "u2"} {
			out, err := list(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, out.Accounts)
		}
	}

	again, err := svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalSent, again.Signal)
}

func TestAcceptClearsCrossedRequest(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()
	// Both sides read NONE and both pending entries landed.
	_, err := store.AddToSet(ctx, "b", models.FieldPendingRequestsReceived, "a")
	require.NoError(t, err)
	_, err = store.AddToSet(ctx, "a", models.FieldPendingRequestsReceived, "b")
	require.NoError(t, err)

	res, err := svc.ResolveRequest(ctx, "b", "a", graph.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, graph.SignalFriends, res.Signal)

	a, b := load(t, store, "a"), load(t, store, "b")
	assert.Empty(t, a.PendingRequestsReceived)
	assert.Empty(t, b.PendingRequestsReceived)
	assert.Equal(t, []string{"b"}, a.Friends)
	assert.Equal(t, []string{"a"}, b.Friends)

	requests, err := svc.ListFriendRequests(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, requests.Accounts)
}

// raceStore runs before once, ahead of the first pending add it sees.
type raceStore struct {
	repositories.AccountStore
	once   sync.Once
	before func()
}

func (r *raceStore) AddToSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	if field == models.FieldPendingRequestsReceived {
		r.once.Do(r.before)
	}
	return r.AccountStore.AddToSet(ctx, id, field, value)
}

func TestStaleSendAfterAcceptIsRefused(t *testing.T) {
	mem := repositories.NewMemoryAccountRepository()
	seedAccounts(t, mem, "a", "b")
	ctx := context.Background()
	store := &raceStore{AccountStore: mem, before: func() {
		// The pair becomes friends between the send's read and its write.
		_, _ = mem.AddToSet(ctx, "a", models.FieldFriends, "b")
		_, _ = mem.AddToSet(ctx, "b", models.FieldFriends, "a")
	}}
	svc := NewFriendGraphService(store, nil, nil, logrus.New())

	res, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalAlreadyFriends, res.Signal)
	assert.Empty(t, load(t, mem, "b").PendingRequestsReceived)
}

func TestResolveUnknownAction(t *testing.T) {
	store := new(mocks.MockAccountStore)
	svc := NewFriendGraphService(store, nil, nil, logrus.New())

	_, err := svc.ResolveRequest(context.Background(), "b", "a", graph.Action(""))
	assert.ErrorIs(t, err, graph.ErrUnknownAction)
	store.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestResolveBySenderIsNoPendingRequest(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)

	res, err := svc.ResolveRequest(ctx, "a", "b", graph.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, graph.SignalNoPendingRequest, res.Signal)
	assert.Empty(t, load(t, store, "a").Friends)
	assert.Equal(t, []string{"a"}, load(t, store, "b").PendingRequestsReceived)
}

func TestRemoveWhenNotFriends(t *testing.T) {
	svc, _ := newMemoryService(t, "a", "b")

	res, err := svc.RemoveFriend(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalNotFriends, res.Signal)
}

func TestRemoveKeepsOtherFriends(t *testing.T) {
	svc, _ := newMemoryService(t, "a", "b", "c")
	ctx := context.Background()

	for _, other := range []string{"b", "c"} {
		_, err := svc.SendRequest(ctx, other, "a")
		require.NoError(t, err)
		_, err = svc.ResolveRequest(ctx, "a", other, graph.ActionAccept)
		require.NoError(t, err)
	}

	res, err := svc.RemoveFriend(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalRemoved, res.Signal)
	assert.False(t, res.NoFriendsLeft)

	friends, err := svc.ListFriends(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(friends.Accounts))
}

func TestRemoveCleansHalfFriendship(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()

	_, err := store.AddToSet(ctx, "a", models.FieldFriends, "b")
	require.NoError(t, err)

	res, err := svc.RemoveFriend(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalRemoved, res.Signal)
	assert.Empty(t, load(t, store, "a").Friends)
}

func TestListSkipsDanglingIdentifiers(t *testing.T) {
	store := repositories.NewMemoryAccountRepository()
	seedAccounts(t, store, "a", "b")
	logger, hook := logtest.NewNullLogger()
	svc := NewFriendGraphService(store, nil, nil, logger)
	ctx := context.Background()

	_, err := store.AddToSet(ctx, "a", models.FieldFriends, "b")
	require.NoError(t, err)
	_, err = store.AddToSet(ctx, "a", models.FieldFriends, "deleted")
	require.NoError(t, err)

	res, err := svc.ListFriends(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(res.Accounts))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "deleted", hook.LastEntry().Data["missing_id"])
}

func TestListUnknownActor(t *testing.T) {
	svc, _ := newMemoryService(t)

	res, err := svc.ListFriendRequests(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, graph.SignalNotFound, res.Signal)
}

func TestAreFriends(t *testing.T) {
	svc, _ := newMemoryService(t, "a", "b")
	ctx := context.Background()

	ok, err := svc.AreFriends(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)
	_, err = svc.ResolveRequest(ctx, "b", "a", graph.ActionAccept)
	require.NoError(t, err)

	ok, err = svc.AreFriends(ctx, "b", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.AreFriends(ctx, "a", "ghost")
	assert.ErrorIs(t, err, repositories.ErrAccountNotFound)
}

func TestConcurrentDuplicateSendsLeaveOneEntry(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()

	const workers = 16
	signals := make(chan graph.Signal, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.SendRequest(ctx, "a", "b")
			if err == nil {
				signals <- res.Signal
			}
		}()
	}
	wg.Wait()
	close(signals)

	sent := 0
	for s := range signals {
		if s == graph.SignalSent {
			sent++
		} else {
			assert.Equal(t, graph.SignalAlreadyRequested, s)
		}
	}
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"a"}, load(t, store, "b").PendingRequestsReceived)
}

func TestConcurrentAcceptClaimsOnce(t *testing.T) {
	svc, store := newMemoryService(t, "a", "b")
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)

	const workers = 8
	signals := make(chan graph.Signal, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ResolveRequest(ctx, "b", "a", graph.ActionAccept)
			if err == nil {
				signals <- res.Signal
			}
		}()
	}
	wg.Wait()
	close(signals)

	friends := 0
	for s := range signals {
		if s == graph.SignalFriends {
			friends++
		}
	}
	assert.Equal(t, 1, friends)
	assert.Equal(t, []string{"b"}, load(t, store, "a").Friends)
	assert.Equal(t, []string{"a"}, load(t, store, "b").Friends)
}

func TestEventsPublishedForAppliedTransitions(t *testing.T) {
	store := repositories.NewMemoryAccountRepository()
	seedAccounts(t, store, "a", "b")
	pub := new(mocks.MockPublisher)
	pub.On("Publish", mock.Anything, telemetry.EventFriendRequestSent, mock.MatchedBy(func(evt telemetry.FriendEvent) bool {
		return evt.ActorID == "a" && evt.CounterpartID == "b" && evt.Signal == "Sent"
	})).Return(nil).Once()
	pub.On("Publish", mock.Anything, telemetry.EventFriendRequestRejected, mock.Anything).Return(errors.New("broker down")).Once()

	svc := NewFriendGraphService(store, nil, pub, logrus.New())
	ctx := context.Background()

	_, err := svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, "a", "b")
	require.NoError(t, err)

	res, err := svc.ResolveRequest(ctx, "b", "a", graph.ActionReject)
	require.NoError(t, err, "publish failures must not fail the operation")
	assert.Equal(t, graph.SignalRejected, res.Signal)

	pub.AssertExpectations(t)
}

// flakyStore fails the failOn-th set mutation it sees.
type flakyStore struct {
	repositories.AccountStore

	mu     sync.Mutex
	calls  int
	failOn int
	err    error
}

func (f *flakyStore) trip() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.failOn > 0 && f.calls == f.failOn
}

func (f *flakyStore) disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = 0
}

func (f *flakyStore) AddToSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	if f.trip() {
		return false, f.err
	}
	return f.AccountStore.AddToSet(ctx, id, field, value)
}

func (f *flakyStore) RemoveFromSet(ctx context.Context, id string, field models.SetField, value string) (bool, error) {
	if f.trip() {
		return false, f.err
	}
	return f.AccountStore.RemoveFromSet(ctx, id, field, value)
}

func TestFirstWriteFailureIsStoreError(t *testing.T) {
	mem := repositories.NewMemoryAccountRepository()
	seedAccounts(t, mem, "a", "b")
	store := &flakyStore{AccountStore: mem, failOn: 1, err: errors.New("connection reset")}
	svc := NewFriendGraphService(store, nil, nil, logrus.New())

	_, err := svc.SendRequest(context.Background(), "a", "b")

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, OperationSendRequest, storeErr.Op)
	assert.Empty(t, load(t, mem, "b").PendingRequestsReceived)
}

func TestPartialAcceptIsRepaired(t *testing.T) {
	mem := repositories.NewMemoryAccountRepository()
	seedAccounts(t, mem, "a", "b")
	ctx := context.Background()
	_, err := mem.AddToSet(ctx, "b", models.FieldPendingRequestsReceived, "a")
	require.NoError(t, err)

	store := &flakyStore{AccountStore: mem, failOn: 2, err: errors.New("timeout")}
	logger, hook := logtest.NewNullLogger()
	reconciler := NewReconciler(store, nil, nil, logger)
	svc := NewFriendGraphService(store, reconciler, nil, logger)

	_, err = svc.ResolveRequest(ctx, "b", "a", graph.ActionAccept)

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, OperationAcceptRequest, partial.Operation)
	assert.Len(t, partial.Applied, 1)
	assert.Len(t, partial.Remaining, 3)
	assert.NotEmpty(t, partial.RepairID)
	assert.Condition(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel && e.Data["repair_id"] == partial.RepairID {
				return true
			}
		}
		return false
	})

	pending := reconciler.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, partial.RepairID, pending[0].ID)
	assert.Empty(t, load(t, mem, "b").PendingRequestsReceived)
	assert.Empty(t, load(t, mem, "a").Friends)

	store.disarm()
	repaired, err := reconciler.RepairPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Empty(t, reconciler.Pending())
	assert.Equal(t, []string{"b"}, load(t, mem, "a").Friends)
	assert.Equal(t, []string{"a"}, load(t, mem, "b").Friends)
}

func TestPartialRemoveIsRepaired(t *testing.T) {
	mem := repositories.NewMemoryAccountRepository()
	seedAccounts(t, mem, "a", "b")
	ctx := context.Background()
	_, err := mem.AddToSet(ctx, "a", models.FieldFriends, "b")
	require.NoError(t, err)
	_, err = mem.AddToSet(ctx, "b", models.FieldFriends, "a")
	require.NoError(t, err)

	store := &flakyStore{AccountStore: mem, failOn: 2, err: errors.New("timeout")}
	reconciler := NewReconciler(store, nil, nil, logrus.New())
	svc := NewFriendGraphService(store, reconciler, nil, logrus.New())

	_, err = svc.RemoveFriend(ctx, "a", "b")
	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Empty(t, load(t, mem, "b").Friends)
	assert.Equal(t, []string{"b"}, load(t, mem, "a").Friends)

	repaired, err := reconciler.RepairPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Empty(t, load(t, mem, "a").Friends)
}

func TestTransactionalAcceptCommits(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := repositories.NewAccountRepository(sqlx.NewDb(db, "postgres"))
	svc := NewFriendGraphService(store, nil, nil, logrus.New())

	cols := []string{"id", "username", "email", "password", "profile_picture", "pending_requests_received", "friends", "created_at"}
	now := time.Now()
	sqlMock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id=$1`)).WithArgs("b").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("b", "bob", "b@example.com", "h", nil, "{a}", "{}", now))
	sqlMock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id=$1`)).WithArgs("a").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a", "alice", "a@example.com", "h", nil, "{}", "{}", now))
	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(regexp.QuoteMeta(`array_remove(pending_requests_received, $2)`)).WithArgs("b", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectExec(regexp.QuoteMeta(`array_append(friends, $2)`)).WithArgs("a", "b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectExec(regexp.QuoteMeta(`array_remove(pending_requests_received, $2)`)).WithArgs("a", "b").
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	sqlMock.ExpectExec(regexp.QuoteMeta(`array_append(friends, $2)`)).WithArgs("b", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectCommit()

	res, err := svc.ResolveRequest(context.Background(), "b", "a", graph.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, graph.SignalFriends, res.Signal)
	require.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTransactionalAcceptRollsBack(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := repositories.NewAccountRepository(sqlx.NewDb(db, "postgres"))
	reconciler := NewReconciler(store, nil, nil, logrus.New())
	svc := NewFriendGraphService(store, reconciler, nil, logrus.New())

	cols := []string{"id", "username", "email", "password", "profile_picture", "pending_requests_received", "friends", "created_at"}
	now := time.Now()
	sqlMock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id=$1`)).WithArgs("b").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("b", "bob", "b@example.com", "h", nil, "{a}", "{}", now))
	sqlMock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id=$1`)).WithArgs("a").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a", "alice", "a@example.com", "h", nil, "{}", "{}", now))
	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(regexp.QuoteMeta(`array_remove(pending_requests_received, $2)`)).WithArgs("b", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectExec(regexp.QuoteMeta(`array_append(friends, $2)`)).WithArgs("a", "b").
		WillReturnError(errors.New("deadlock detected"))
	sqlMock.ExpectRollback()

	_, err = svc.ResolveRequest(context.Background(), "b", "a", graph.ActionAccept)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	var partial *PartialFailureError
	assert.False(t, errors.As(err, &partial))
	assert.Empty(t, reconciler.Pending())
	require.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestTransactionalStaleClaim(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := repositories.NewAccountRepository(sqlx.NewDb(db, "postgres"))
	svc := NewFriendGraphService(store, nil, nil, logrus.New())

	cols := []string{"id", "username", "email", "password", "profile_picture", "pending_requests_received", "friends", "created_at"}
	now := time.Now()
	sqlMock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id=$1`)).WithArgs("b").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("b", "bob", "b@example.com", "h", nil, "{a}", "{}", now))
	sqlMock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id=$1`)).WithArgs("a").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a", "alice", "a@example.com", "h", nil, "{}", "{}", now))
	sqlMock.ExpectBegin()
	sqlMock.ExpectExec(regexp.QuoteMeta(`array_remove(pending_requests_received, $2)`)).WithArgs("b", "a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	sqlMock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).WithArgs("b").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	sqlMock.ExpectRollback()

	res, err := svc.ResolveRequest(context.Background(), "b", "a", graph.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, graph.SignalNoPendingRequest, res.Signal)
	require.NoError(t, sqlMock.ExpectationsWereMet())
}
