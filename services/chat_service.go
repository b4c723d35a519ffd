// Package services holds the business rules sitting between the gateway
// and the repositories. Every mutation publishes its domain event only
// after the repository write has succeeded, so the gateway never routes
// against state that was rolled back.
package services

import (
	"context"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"chat-gateway/repositories"
)

type IChatService interface {
	CreateChat(ctx context.Context, creator domain.UserID, participants []domain.UserID) (domain.Chat, error)
	GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error)
	AddParticipants(ctx context.Context, chatID domain.ChatID, userIDs []domain.UserID) (domain.Chat, error)
	LeaveChat(ctx context.Context, chatID domain.ChatID, userID domain.UserID) error
	FindChatsForUser(ctx context.Context, userID domain.UserID) ([]domain.ChatID, error)
}

type ChatService struct {
	chatRepository repositories.IChatRepository
	publisher      contract.EventPublisher
}

func NewChatService(repo repositories.IChatRepository, publisher contract.EventPublisher) *ChatService {
	return &ChatService{chatRepository: repo, publisher: publisher}
}

func (s *ChatService) CreateChat(_ context.Context, creator domain.UserID, participants []domain.UserID) (domain.Chat, error) {
	chat, err := s.chatRepository.CreateChat(creator, participants)
	if err != nil {
		return domain.Chat{}, err
	}
	s.publisher.Publish(event.ParticipantsJoined{
		ChatID:  chat.ID,
		UserIDs: chat.Participants,
	})
	return chat, nil
}

func (s *ChatService) GetChat(_ context.Context, chatID domain.ChatID) (domain.Chat, error) {
	return s.chatRepository.GetChat(chatID)
}

func (s *ChatService) AddParticipants(_ context.Context, chatID domain.ChatID, userIDs []domain.UserID) (domain.Chat, error) {
	chat, err := s.chatRepository.AddParticipants(chatID, userIDs)
	if err != nil {
		return domain.Chat{}, err
	}
	s.publisher.Publish(event.ParticipantsJoined{ChatID: chatID, UserIDs: userIDs})
	return chat, nil
}

func (s *ChatService) LeaveChat(_ context.Context, chatID domain.ChatID, userID domain.UserID) error {
	if _, err := s.chatRepository.RemoveParticipant(chatID, userID); err != nil {
		return err
	}
	s.publisher.Publish(event.ParticipantLeft{ChatID: chatID, UserID: userID})
	return nil
}

// FindChatsForUser satisfies the registry's lookup contract.
func (s *ChatService) FindChatsForUser(_ context.Context, userID domain.UserID) ([]domain.ChatID, error) {
	return s.chatRepository.FindChatsForUser(userID)
}
