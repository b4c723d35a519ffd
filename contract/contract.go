//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// TokenVerifier resolves the credential carried in a websocket handshake
// to a user identity. Any error is terminal for the connection.
type TokenVerifier interface {
	ResolveUserID(credential string) (domain.UserID, error)
}

// ChatLookup answers the one question the registry asks about persistence:
// which chats does this user belong to right now. Called once per user's
// first connection, outside the registry's exclusive section.
type ChatLookup interface {
	FindChatsForUser(ctx context.Context, userID domain.UserID) ([]domain.ChatID, error)
}

// SendMessage carries a client's intent to post a message.
// MessageID is the optional client-supplied id used for deduplication.
type SendMessage struct {
	ChatID    domain.ChatID
	SenderID  domain.UserID
	Content   string
	MessageID *uuid.UUID
}

// MessageStore persists messages on behalf of the inbound dispatcher.
type MessageStore interface {
	SendMessage(ctx context.Context, cmd SendMessage) (domain.Message, error)
}

// EventPublisher hands a committed domain event to the gateway workers.
// Implementations must be safe for concurrent use and must not block.
type EventPublisher interface {
	Publish(e event.DomainEvent)
}
