package services

import (
	"context"
	"testing"

	"chat-gateway/domain/event"
	"chat-gateway/errors"
	"chat-gateway/mocks"
	"chat-gateway/repositories"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestProfileService_UpdateProfilePicture(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	mockPublisher := mocks.NewMockEventPublisher(ctrl)
	svc := NewProfileService(mockRepo, mockPublisher)

	t.Run("should update and publish for a valid https url", func(t *testing.T) {
		req := require.New(t)
		newURL := "https://cdn.example.com/alice.png"

		mockRepo.EXPECT().
			UpdateProfilePicture(gomock.Any(), lo.ToPtr(newURL)).
			Return(repositories.User{ID: "uuid-1", ProfilePictureURL: &newURL}, nil).
			Times(1)
		mockPublisher.EXPECT().
			Publish(event.ProfilePictureUpdated{UserID: "uuid-1", NewURL: lo.ToPtr(newURL)}).
			Times(1)

		req.NoError(svc.UpdateProfilePicture(context.Background(), "uuid-1", &newURL))
	})

	t.Run("should clear the picture and publish a nil url", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			UpdateProfilePicture(gomock.Any(), gomock.Nil()).
			Return(repositories.User{ID: "uuid-1"}, nil).
			Times(1)
		mockPublisher.EXPECT().
			Publish(event.ProfilePictureUpdated{UserID: "uuid-1", NewURL: nil}).
			Times(1)

		req.NoError(svc.UpdateProfilePicture(context.Background(), "uuid-1", nil))
	})

	t.Run("should reject a non-https url", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().UpdateProfilePicture(gomock.Any(), gomock.Any()).Times(0)
		mockPublisher.EXPECT().Publish(gomock.Any()).Times(0)

		err := svc.UpdateProfilePicture(context.Background(), "uuid-1",
			lo.ToPtr("http://insecure.example.com/pic.png"))

		req.ErrorIs(err, errors.ErrInvalidPictureURL)
	})

	t.Run("should publish nothing when the write fails", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			UpdateProfilePicture(gomock.Any(), gomock.Any()).
			Return(repositories.User{}, errors.ErrUserNotFound).
			Times(1)
		mockPublisher.EXPECT().Publish(gomock.Any()).Times(0)

		err := svc.UpdateProfilePicture(context.Background(), "uuid-1",
			lo.ToPtr("https://cdn.example.com/pic.png"))

		req.ErrorIs(err, errors.ErrUserNotFound)
	})
}
