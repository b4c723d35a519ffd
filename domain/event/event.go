// Package event defines the domain events the gateway reacts to.
//
// Every event describes a state change that has already been durably
// committed by the owning service. Publishers must never emit an event
// before its transaction commits, otherwise the registry could observe a
// membership change that a reconnecting client cannot yet read back.
package event

import (
	"chat-gateway/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	Name() string
}

// MessageDeleted is emitted after a message row is removed.
type MessageDeleted struct {
	ChatID    domain.ChatID
	MessageID uuid.UUID
}

func (MessageDeleted) Name() string { return "chat.message.deleted" }

// ParticipantsJoined is emitted after users are added to a chat.
type ParticipantsJoined struct {
	ChatID  domain.ChatID
	UserIDs []domain.UserID
}

func (ParticipantsJoined) Name() string { return "chat.participants.joined" }

// ParticipantLeft is emitted after a user is removed from a chat.
type ParticipantLeft struct {
	ChatID domain.ChatID
	UserID domain.UserID
}

func (ParticipantLeft) Name() string { return "chat.participant.left" }

// ProfilePictureUpdated is emitted after a user changes or clears their
// profile picture. NewURL is nil when the picture was removed.
type ProfilePictureUpdated struct {
	UserID domain.UserID
	NewURL *string
}

func (ProfilePictureUpdated) Name() string { return "user.profile_picture.updated" }
