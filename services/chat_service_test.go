package services

import (
	"context"
	"fmt"
	"testing"

	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"chat-gateway/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatService_CreateChat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIChatRepository(ctrl)
	mockPublisher := mocks.NewMockEventPublisher(ctrl)
	svc := NewChatService(mockRepo, mockPublisher)

	t.Run("should publish a join event after the write succeeds", func(t *testing.T) {
		req := require.New(t)
		created := domain.Chat{
			ID:           "chat-1",
			CreatedBy:    "alice",
			Participants: []domain.UserID{"alice", "bob"},
		}

		mockRepo.EXPECT().
			CreateChat(domain.UserID("alice"), []domain.UserID{"bob"}).
			Return(created, nil).
			Times(1)
		mockPublisher.EXPECT().
			Publish(event.ParticipantsJoined{
				ChatID:  "chat-1",
				UserIDs: []domain.UserID{"alice", "bob"},
			}).
			Times(1)

		chat, err := svc.CreateChat(context.Background(), "alice", []domain.UserID{"bob"})

		req.NoError(err)
		req.Equal(created, chat)
	})

	t.Run("should publish nothing when the write fails", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			CreateChat(gomock.Any(), gomock.Any()).
			Return(domain.Chat{}, fmt.Errorf("disk full")).
			Times(1)
		mockPublisher.EXPECT().Publish(gomock.Any()).Times(0)

		_, err := svc.CreateChat(context.Background(), "alice", nil)

		req.Error(err)
	})
}

func TestChatService_AddParticipants(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIChatRepository(ctrl)
	mockPublisher := mocks.NewMockEventPublisher(ctrl)
	svc := NewChatService(mockRepo, mockPublisher)

	updated := domain.Chat{ID: "chat-1", Participants: []domain.UserID{"alice", "bob"}}
	mockRepo.EXPECT().
		AddParticipants(domain.ChatID("chat-1"), []domain.UserID{"bob"}).
		Return(updated, nil).
		Times(1)
	// Only the newly added users appear in the event
	mockPublisher.EXPECT().
		Publish(event.ParticipantsJoined{ChatID: "chat-1", UserIDs: []domain.UserID{"bob"}}).
		Times(1)

	chat, err := svc.AddParticipants(context.Background(), "chat-1", []domain.UserID{"bob"})

	req.NoError(err)
	req.Equal(updated, chat)
}

func TestChatService_LeaveChat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIChatRepository(ctrl)
	mockPublisher := mocks.NewMockEventPublisher(ctrl)
	svc := NewChatService(mockRepo, mockPublisher)

	t.Run("should publish the departure after the write succeeds", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			RemoveParticipant(domain.ChatID("chat-1"), domain.UserID("bob")).
			Return(domain.Chat{ID: "chat-1", Participants: []domain.UserID{"alice"}}, nil).
			Times(1)
		mockPublisher.EXPECT().
			Publish(event.ParticipantLeft{ChatID: "chat-1", UserID: "bob"}).
			Times(1)

		req.NoError(svc.LeaveChat(context.Background(), "chat-1", "bob"))
	})

	t.Run("should publish nothing when the write fails", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			RemoveParticipant(gomock.Any(), gomock.Any()).
			Return(domain.Chat{}, fmt.Errorf("conflict")).
			Times(1)
		mockPublisher.EXPECT().Publish(gomock.Any()).Times(0)

		req.Error(svc.LeaveChat(context.Background(), "chat-1", "bob"))
	})
}

func TestChatService_FindChatsForUser(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIChatRepository(ctrl)
	svc := NewChatService(mockRepo, mocks.NewMockEventPublisher(ctrl))

	mockRepo.EXPECT().
		FindChatsForUser(domain.UserID("alice")).
		Return([]domain.ChatID{"chat-1", "chat-2"}, nil).
		Times(1)

	chatIDs, err := svc.FindChatsForUser(context.Background(), "alice")

	req.NoError(err)
	req.Equal([]domain.ChatID{"chat-1", "chat-2"}, chatIDs)
}
