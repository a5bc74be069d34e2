package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/graph"
	"friend-graph-service/internal/metrics"
	"friend-graph-service/internal/models"
	"friend-graph-service/internal/rabbitmq"
	"friend-graph-service/internal/repositories"
	"friend-graph-service/internal/telemetry"
)

// Operation names used in repairs, errors and partial failure metrics.
const (
	OperationSendRequest   = "send_request"
	OperationAcceptRequest = "accept_request"
	OperationRejectRequest = "reject_request"
	OperationRemoveFriend  = "remove_friend"
)

var errStaleClaim = errors.New("claim no longer holds")

// StoreError means the operation failed before any record was changed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: store failure: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// PartialFailureError means at least one record was updated and a later write failed.
// The remaining mutations were handed to the repair log under RepairID.
type PartialFailureError struct {
	Operation string
	RepairID  string
	Applied   []graph.Mutation
	Remaining []graph.Mutation
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: partially applied (%d of %d writes), repair %s: %v",
		e.Operation, len(e.Applied), len(e.Applied)+len(e.Remaining), e.RepairID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

type SendResult struct {
	Signal graph.Signal
	Target models.PublicProfile
}

type ResolveResult struct {
	Signal   graph.Signal
	Action   graph.Action
	Resolver models.PublicProfile
	Sender   models.PublicProfile
}

type ListResult struct {
	Signal   graph.Signal
	Accounts []models.PublicProfile
}

type RemoveResult struct {
	Signal        graph.Signal
	Target        models.PublicProfile
	NoFriendsLeft bool
}

// FriendGraphService applies relationship transitions to the account store.
type FriendGraphService struct {
	store   repositories.AccountStore
	repairs RepairLog
	events  rabbitmq.Publisher
	logger  logrus.FieldLogger
}

func NewFriendGraphService(store repositories.AccountStore, repairs RepairLog, events rabbitmq.Publisher, logger logrus.FieldLogger) *FriendGraphService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if events == nil {
		events = rabbitmq.NewNoopPublisher(logger)
	}
	if repairs == nil {
		repairs = NewReconciler(store, nil, events, logger)
	}
	return &FriendGraphService{store: store, repairs: repairs, events: events, logger: logger}
}

func (s *FriendGraphService) SendRequest(ctx context.Context, actorID, targetID string) (SendResult, error) {
	if actorID == targetID {
		return SendResult{Signal: graph.SignalSelfReference}, nil
	}

	actor, target, err := s.loadPair(ctx, OperationSendRequest, actorID, targetID)
	if err != nil {
		return SendResult{}, err
	}
	if actor == nil || target == nil {
		return SendResult{Signal: graph.SignalNotFound}, nil
	}

	result := SendResult{Target: target.Profile()}
	tr := graph.SendRequest(actor, target)
	result.Signal, err = s.apply(ctx, OperationSendRequest, tr)
	if err != nil {
		return SendResult{}, err
	}
	if tr.Signal == graph.SignalSent && result.Signal == tr.OnStale {
		// The store refuses a pending entry for an existing friend.
		if fresh, err := s.find(ctx, OperationSendRequest, targetID); err == nil && fresh != nil && fresh.IsFriendOf(actorID) {
			result.Signal = graph.SignalAlreadyFriends
		}
	}
	if result.Signal == graph.SignalSent {
		s.publish(ctx, telemetry.EventFriendRequestSent, actorID, targetID, result.Signal)
	}
	return result, nil
}

// ResolveRequest accepts or rejects the pending request senderID made to actorID.
func (s *FriendGraphService) ResolveRequest(ctx context.Context, actorID, senderID string, action graph.Action) (ResolveResult, error) {
	if !action.Valid() {
		return ResolveResult{}, graph.ErrUnknownAction
	}
	result := ResolveResult{Action: action}
	if actorID == senderID {
		result.Signal = graph.SignalSelfReference
		return result, nil
	}

	operation := OperationAcceptRequest
	if action == graph.ActionReject {
		operation = OperationRejectRequest
	}

	resolver, sender, err := s.loadPair(ctx, operation, actorID, senderID)
	if err != nil {
		return ResolveResult{}, err
	}
	if resolver == nil || sender == nil {
		result.Signal = graph.SignalNotFound
		return result, nil
	}
	result.Resolver = resolver.Profile()
	result.Sender = sender.Profile()

	result.Signal, err = s.apply(ctx, operation, graph.Resolve(resolver, sender, action))
	if err != nil {
		return ResolveResult{}, err
	}
	switch result.Signal {
	case graph.SignalFriends:
		s.publish(ctx, telemetry.EventFriendRequestAccepted, actorID, senderID, result.Signal)
	case graph.SignalRejected:
		s.publish(ctx, telemetry.EventFriendRequestRejected, actorID, senderID, result.Signal)
	}
	return result, nil
}

func (s *FriendGraphService) ListFriendRequests(ctx context.Context, actorID string) (ListResult, error) {
	return s.list(ctx, "list_friend_requests", actorID, models.FieldPendingRequestsReceived)
}

func (s *FriendGraphService) ListFriends(ctx context.Context, actorID string) (ListResult, error) {
	return s.list(ctx, "list_friends", actorID, models.FieldFriends)
}

func (s *FriendGraphService) RemoveFriend(ctx context.Context, actorID, targetID string) (RemoveResult, error) {
	if actorID == targetID {
		return RemoveResult{Signal: graph.SignalSelfReference}, nil
	}

	actor, target, err := s.loadPair(ctx, OperationRemoveFriend, actorID, targetID)
	if err != nil {
		return RemoveResult{}, err
	}
	if actor == nil || target == nil {
		return RemoveResult{Signal: graph.SignalNotFound}, nil
	}

	result := RemoveResult{Target: target.Profile()}
	result.Signal, err = s.apply(ctx, OperationRemoveFriend, graph.Remove(actor, target))
	if err != nil {
		return RemoveResult{}, err
	}
	if result.Signal == graph.SignalRemoved {
		result.NoFriendsLeft = remainingFriends(actor, targetID) == 0
		s.publish(ctx, telemetry.EventFriendshipRemoved, actorID, targetID, result.Signal)
	}
	return result, nil
}

// AreFriends reports whether either account lists the other as a friend.
func (s *FriendGraphService) AreFriends(ctx context.Context, accountID, otherID string) (bool, error) {
	if accountID == otherID {
		return false, nil
	}
	a, b, err := s.loadPair(ctx, "are_friends", accountID, otherID)
	if err != nil {
		return false, err
	}
	if a == nil || b == nil {
		return false, repositories.ErrAccountNotFound
	}
	return graph.Observe(a, b).State == graph.StateFriends, nil
}

// loadPair returns nil accounts without error when either record does not exist.
func (s *FriendGraphService) loadPair(ctx context.Context, operation, firstID, secondID string) (*models.Account, *models.Account, error) {
	first, err := s.find(ctx, operation, firstID)
	if err != nil || first == nil {
		return nil, nil, err
	}
	second, err := s.find(ctx, operation, secondID)
	if err != nil || second == nil {
		return nil, nil, err
	}
	return first, second, nil
}

func (s *FriendGraphService) find(ctx context.Context, operation, id string) (*models.Account, error) {
	account, err := s.store.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: operation, Err: err}
	}
	return account, nil
}

func (s *FriendGraphService) list(ctx context.Context, operation, actorID string, field models.SetField) (ListResult, error) {
	actor, err := s.find(ctx, operation, actorID)
	if err != nil {
		return ListResult{}, err
	}
	if actor == nil {
		return ListResult{Signal: graph.SignalNotFound}, nil
	}

	ids := actor.Friends
	if field == models.FieldPendingRequestsReceived {
		ids = actor.PendingRequestsReceived
	}

	profiles := make([]models.PublicProfile, 0, len(ids))
	for _, id := range ids {
		account, err := s.find(ctx, operation, id)
		if err != nil {
			return ListResult{}, err
		}
		if account == nil {
			s.logger.WithFields(logrus.Fields{
				"account_id": actorID,
				"field":      field,
				"missing_id": id,
			}).Warn("warning: relationship set references a missing account")
			continue
		}
		profiles = append(profiles, account.Profile())
	}
	return ListResult{Signal: graph.SignalListed, Accounts: profiles}, nil
}

// apply persists the transition's mutations and returns the final signal.
func (s *FriendGraphService) apply(ctx context.Context, operation string, tr graph.Transition) (graph.Signal, error) {
	if len(tr.Mutations) == 0 {
		return tr.Signal, nil
	}

	if tx, ok := s.store.(repositories.Transactor); ok && len(tr.Mutations) > 1 {
		return s.applyInTx(ctx, tx, operation, tr)
	}

	for i, m := range tr.Mutations {
		changed, err := applyMutation(ctx, s.store, m)
		if err != nil {
			if i == 0 {
				return "", &StoreError{Op: operation, Err: err}
			}
			return "", s.partialFailure(ctx, operation, tr.Mutations[:i], tr.Mutations[i:], err)
		}
		if i == 0 && !changed && tr.OnStale != "" {
			return tr.OnStale, nil
		}
	}
	return tr.Signal, nil
}

func (s *FriendGraphService) applyInTx(ctx context.Context, tx repositories.Transactor, operation string, tr graph.Transition) (graph.Signal, error) {
	err := tx.WithinTx(ctx, func(ctx context.Context, store repositories.AccountStore) error {
		for i, m := range tr.Mutations {
			changed, err := applyMutation(ctx, store, m)
			if err != nil {
				return err
			}
			if i == 0 && !changed && tr.OnStale != "" {
				return errStaleClaim
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, errStaleClaim):
		return tr.OnStale, nil
	case err != nil:
		return "", &StoreError{Op: operation, Err: err}
	}
	return tr.Signal, nil
}

func (s *FriendGraphService) partialFailure(ctx context.Context, operation string, applied, remaining []graph.Mutation, cause error) error {
	repair := NewRepair(operation, remaining, cause)
	metrics.IncPartialFailure(operation)

	log := s.logger.WithError(cause).WithFields(logrus.Fields{
		"operation": operation,
		"repair_id": repair.ID,
		"applied":   len(applied),
		"remaining": len(remaining),
	})
	log.Error("friend operation partially applied")
	if err := s.repairs.Record(ctx, repair); err != nil {
		log.WithField("record_error", err.Error()).Error("failed to record repair")
	}

	return &PartialFailureError{
		Operation: operation,
		RepairID:  repair.ID,
		Applied:   applied,
		Remaining: remaining,
		Err:       cause,
	}
}

func (s *FriendGraphService) publish(ctx context.Context, eventType, actorID, counterpartID string, signal graph.Signal) {
	evt := telemetry.NewFriendEvent(eventType, actorID, counterpartID, string(signal))
	if err := s.events.Publish(ctx, eventType, evt); err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("warning: failed to publish friend event")
	}
}

func applyMutation(ctx context.Context, store repositories.AccountStore, m graph.Mutation) (bool, error) {
	if m.Op == graph.OpRemove {
		return store.RemoveFromSet(ctx, m.Account, m.Field, m.Value)
	}
	return store.AddToSet(ctx, m.Account, m.Field, m.Value)
}

func remainingFriends(actor *models.Account, removedID string) int {
	n := 0
	for _, id := range actor.Friends {
		if id != removedID {
			n++
		}
	}
	return n
}
