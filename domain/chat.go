package domain

import "time"

// Chat is a conversation and its participant list.
type Chat struct {
	ID           ChatID
	CreatedBy    UserID
	Participants []UserID
	CreatedAt    time.Time
}

func (c Chat) HasParticipant(userID UserID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
