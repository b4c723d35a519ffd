package services

import (
	"context"
	"time"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/domain/event"
	errs "chat-gateway/errors"
	"chat-gateway/repositories"

	"github.com/google/uuid"
)

type IMessageService interface {
	SendMessage(ctx context.Context, cmd contract.SendMessage) (domain.Message, error)
	GetMessages(ctx context.Context, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error)
	DeleteMessage(ctx context.Context, chatID domain.ChatID, messageID uuid.UUID, requester domain.UserID) error
}

type MessageService struct {
	chatRepository    repositories.IChatRepository
	messageRepository repositories.IMessageRepository
	publisher         contract.EventPublisher
	clock             func() time.Time
}

func NewMessageService(chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	publisher contract.EventPublisher) *MessageService {
	return &MessageService{
		chatRepository:    chats,
		messageRepository: messages,
		publisher:         publisher,
		clock:             time.Now,
	}
}

// WithClock injects a deterministic clock for tests.
func (s *MessageService) WithClock(clock func() time.Time) *MessageService {
	s.clock = clock
	return s
}

// SendMessage checks the sender against the persisted participant set,
// then stores the message. The registry already filtered non-members,
// but persistence stays authoritative: a stale membership cache must not
// let a removed user write into the chat.
func (s *MessageService) SendMessage(_ context.Context, cmd contract.SendMessage) (domain.Message, error) {
	chat, err := s.chatRepository.GetChat(cmd.ChatID)
	if err != nil {
		return domain.Message{}, err
	}
	if !chat.HasParticipant(cmd.SenderID) {
		return domain.Message{}, errs.ErrNotParticipant
	}

	id := uuid.New()
	if cmd.MessageID != nil {
		id = *cmd.MessageID
	}
	message := domain.Message{
		ID:        id,
		ChatID:    cmd.ChatID,
		SenderID:  cmd.SenderID,
		Content:   cmd.Content,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.messageRepository.StoreMessage(message); err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

func (s *MessageService) GetMessages(_ context.Context, chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	return s.messageRepository.GetMessages(chatID, cursor)
}

// DeleteMessage removes a message the requester authored, then announces
// the deletion to the chat.
func (s *MessageService) DeleteMessage(_ context.Context, chatID domain.ChatID, messageID uuid.UUID, requester domain.UserID) error {
	message, err := s.messageRepository.GetMessage(chatID, messageID)
	if err != nil {
		return err
	}
	if message.SenderID != requester {
		return errs.ErrNotParticipant
	}
	if err := s.messageRepository.DeleteMessage(chatID, messageID); err != nil {
		return err
	}
	s.publisher.Publish(event.MessageDeleted{ChatID: chatID, MessageID: messageID})
	return nil
}
