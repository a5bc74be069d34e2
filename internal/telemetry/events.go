package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for domain events on the events exchange.
const (
	EventFriendRequestSent     = "friend.request.sent"
	EventFriendRequestAccepted = "friend.request.accepted"
	EventFriendRequestRejected = "friend.request.rejected"
	EventFriendshipRemoved     = "friendship.removed"
	EventRepairRecorded        = "friendship.repair.recorded"
	EventRepairCompleted       = "friendship.repair.completed"
)

type FriendEvent struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	ActorID       string `json:"actor_id"`
	CounterpartID string `json:"counterpart_id"`
	Signal        string `json:"signal"`
}

func NewFriendEvent(eventType, actorID, counterpartID, signal string) FriendEvent {
	return FriendEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:       actorID,
		CounterpartID: counterpartID,
		Signal:        signal,
	}
}

type RepairEvent struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	RepairID   string `json:"repair_id"`
	Operation  string `json:"operation"`
	Remaining  int    `json:"remaining_mutations"`
	Cause      string `json:"cause,omitempty"`
}

func NewRepairEvent(eventType, repairID, operation string, remaining int, cause string) RepairEvent {
	return RepairEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		RepairID:   repairID,
		Operation:  operation,
		Remaining:  remaining,
		Cause:      cause,
	}
}
