package models

import "time"

type Account struct {
	ID                      string    `db:"id" json:"id"`
	Username                string    `db:"username" json:"username"`
	Email                   string    `db:"email" json:"email"`
	Password                string    `db:"password" json:"-"`
	ProfilePicture          string    `db:"profile_picture" json:"profile_picture,omitempty"`
	PendingRequestsReceived []string  `db:"-" json:"-"`
	Friends                 []string  `db:"-" json:"-"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
}

// PublicProfile is the only projection of an account that friend operations expose.
type PublicProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (a *Account) Profile() PublicProfile {
	return PublicProfile{ID: a.ID, Username: a.Username}
}

func (a *Account) HasPendingFrom(id string) bool {
	return contains(a.PendingRequestsReceived, id)
}

func (a *Account) IsFriendOf(id string) bool {
	return contains(a.Friends, id)
}

// Clone returns a copy that shares no slices with the receiver.
func (a *Account) Clone() *Account {
	c := *a
	c.PendingRequestsReceived = append([]string(nil), a.PendingRequestsReceived...)
	c.Friends = append([]string(nil), a.Friends...)
	return &c
}

func contains(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}
