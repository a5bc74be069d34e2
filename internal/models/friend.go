package models

// SetField names one of the two relationship sets held on an account.
type SetField string

const (
	FieldPendingRequestsReceived SetField = "pendingRequestsReceived"
	FieldFriends                 SetField = "friends"
)

func (f SetField) Valid() bool {
	return f == FieldPendingRequestsReceived || f == FieldFriends
}
