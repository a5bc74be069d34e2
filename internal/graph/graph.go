// Package graph holds the friend relationship state machine. It is pure: it reads the
// relationship fields of two accounts and returns the outcome of an action together with
// the ordered set mutations that realise it. Persisting those mutations is up to the caller.
package graph

import (
	"errors"
	"strings"

	"friend-graph-service/internal/models"
)

var ErrUnknownAction = errors.New("unknown friend request action")

type State int

const (
	StateNone State = iota
	StateRequestPending
	StateFriends
)

func (s State) String() string {
	switch s {
	case StateRequestPending:
		return "REQUEST_PENDING"
	case StateFriends:
		return "FRIENDS"
	default:
		return "NONE"
	}
}

// Signal is the outcome code of a transition.
type Signal string

const (
	SignalSent              Signal = "Sent"
	SignalAlreadyRequested  Signal = "AlreadyRequested"
	SignalReciprocalPending Signal = "ReciprocalPending"
	SignalAlreadyFriends    Signal = "AlreadyFriends"
	SignalFriends           Signal = "Friends"
	SignalRejected          Signal = "Rejected"
	SignalNoPendingRequest  Signal = "NoPendingRequest"
	SignalRemoved           Signal = "Removed"
	SignalNotFriends        Signal = "NotFriends"
	SignalSelfReference     Signal = "SelfReference"
	SignalNotFound          Signal = "NotFound"
	SignalListed            Signal = "Listed"
)

// Applied reports whether the signal stands for a state change.
func (s Signal) Applied() bool {
	switch s {
	case SignalSent, SignalFriends, SignalRejected, SignalRemoved:
		return true
	}
	return false
}

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionAccept:
		return ActionAccept, nil
	case ActionReject:
		return ActionReject, nil
	}
	return "", ErrUnknownAction
}

func (a Action) Valid() bool {
	return a == ActionAccept || a == ActionReject
}

// Past returns the action in the form used for user facing messages ("accepted").
func (a Action) Past() string {
	return string(a) + "ed"
}

type Op int

const (
	OpAdd Op = iota
	OpRemove
)

func (o Op) String() string {
	if o == OpRemove {
		return "remove"
	}
	return "add"
}

// Mutation is a single element add or remove on one account's relationship set.
type Mutation struct {
	Account string          `json:"account"`
	Field   models.SetField `json:"field"`
	Op      Op              `json:"op"`
	Value   string          `json:"value"`
}

// Pair is the observed relationship between two accounts. Sender and Receiver are only
// set while a request is pending.
type Pair struct {
	State    State
	Sender   string
	Receiver string
}

// Transition is the result of applying an action to a pair.
//
// Mutations must be applied in order. If the first mutation turns out to be a no-op at
// the data level and OnStale is set, the state the decision was based on was stale: the
// caller reports OnStale instead of Signal and applies nothing further.
type Transition struct {
	Signal    Signal
	Next      State
	Mutations []Mutation
	OnStale   Signal
}

// Observe derives the state of the pair (a, b). A friendship recorded on only one side
// still counts as FRIENDS so that removal can clean it up.
func Observe(a, b *models.Account) Pair {
	switch {
	case a.IsFriendOf(b.ID) || b.IsFriendOf(a.ID):
		return Pair{State: StateFriends}
	case b.HasPendingFrom(a.ID):
		return Pair{State: StateRequestPending, Sender: a.ID, Receiver: b.ID}
	case a.HasPendingFrom(b.ID):
		return Pair{State: StateRequestPending, Sender: b.ID, Receiver: a.ID}
	}
	return Pair{State: StateNone}
}

func SendRequest(sender, receiver *models.Account) Transition {
	if sender.ID == receiver.ID {
		return Transition{Signal: SignalSelfReference, Next: StateNone}
	}

	pair := Observe(sender, receiver)
	switch pair.State {
	case StateFriends:
		return Transition{Signal: SignalAlreadyFriends, Next: StateFriends}
	case StateRequestPending:
		if pair.Sender == sender.ID {
			return Transition{Signal: SignalAlreadyRequested, Next: StateRequestPending}
		}
		return Transition{Signal: SignalReciprocalPending, Next: StateRequestPending}
	}

	return Transition{
		Signal: SignalSent,
		Next:   StateRequestPending,
		Mutations: []Mutation{
			{Account: receiver.ID, Field: models.FieldPendingRequestsReceived, Op: OpAdd, Value: sender.ID},
		},
		OnStale: SignalAlreadyRequested,
	}
}

// Resolve accepts or rejects the request that sender made to resolver. Only the holder of
// the pending entry can resolve it, and an unknown action changes nothing.
//
// Accepting also clears any request the resolver made to the sender. Two crossed requests
// can both land when each side read NONE; the sender's friend entry is written before that
// cleanup so a late crossed request is refused by the store instead of reappearing.
func Resolve(resolver, sender *models.Account, action Action) Transition {
	if resolver.ID == sender.ID {
		return Transition{Signal: SignalSelfReference, Next: StateNone}
	}
	if !action.Valid() {
		return Transition{Signal: SignalNoPendingRequest, Next: Observe(resolver, sender).State}
	}
	if !resolver.HasPendingFrom(sender.ID) {
		return Transition{Signal: SignalNoPendingRequest, Next: Observe(resolver, sender).State}
	}

	claim := Mutation{Account: resolver.ID, Field: models.FieldPendingRequestsReceived, Op: OpRemove, Value: sender.ID}
	if action == ActionReject {
		return Transition{
			Signal:    SignalRejected,
			Next:      StateNone,
			Mutations: []Mutation{claim},
			OnStale:   SignalNoPendingRequest,
		}
	}

	return Transition{
		Signal: SignalFriends,
		Next:   StateFriends,
		Mutations: []Mutation{
			claim,
			{Account: sender.ID, Field: models.FieldFriends, Op: OpAdd, Value: resolver.ID},
			{Account: sender.ID, Field: models.FieldPendingRequestsReceived, Op: OpRemove, Value: resolver.ID},
			{Account: resolver.ID, Field: models.FieldFriends, Op: OpAdd, Value: sender.ID},
		},
		OnStale: SignalNoPendingRequest,
	}
}

func Remove(actor, target *models.Account) Transition {
	if actor.ID == target.ID {
		return Transition{Signal: SignalSelfReference, Next: StateNone}
	}

	pair := Observe(actor, target)
	if pair.State != StateFriends {
		return Transition{Signal: SignalNotFriends, Next: pair.State}
	}

	return Transition{
		Signal: SignalRemoved,
		Next:   StateNone,
		Mutations: []Mutation{
			{Account: target.ID, Field: models.FieldFriends, Op: OpRemove, Value: actor.ID},
			{Account: actor.ID, Field: models.FieldFriends, Op: OpRemove, Value: target.ID},
		},
	}
}
