// Package domain contains core concepts of the chat system.
// This file defines Message records. Messages are immutable once stored.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a stored chat message.
type Message struct {
	ID        uuid.UUID
	ChatID    ChatID
	SenderID  UserID
	Content   string
	CreatedAt time.Time
}
