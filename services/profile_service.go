package services

import (
	"context"
	"net/url"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/domain/event"
	errs "chat-gateway/errors"
	"chat-gateway/repositories"
)

type IProfileService interface {
	GetProfile(ctx context.Context, userID domain.UserID) (repositories.User, error)
	UpdateProfilePicture(ctx context.Context, userID domain.UserID, newURL *string) error
}

type ProfileService struct {
	userRepository repositories.IUserRepository
	publisher      contract.EventPublisher
}

func NewProfileService(repo repositories.IUserRepository, publisher contract.EventPublisher) *ProfileService {
	return &ProfileService{userRepository: repo, publisher: publisher}
}

func (s *ProfileService) GetProfile(_ context.Context, userID domain.UserID) (repositories.User, error) {
	return s.userRepository.GetUserByID(userID)
}

// UpdateProfilePicture sets a new picture URL, or clears it when nil,
// then notifies every connected contact of the user.
func (s *ProfileService) UpdateProfilePicture(_ context.Context, userID domain.UserID, newURL *string) error {
	if newURL != nil {
		parsed, err := url.Parse(*newURL)
		if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
			return errs.ErrInvalidPictureURL
		}
	}
	if _, err := s.userRepository.UpdateProfilePicture(userID, newURL); err != nil {
		return err
	}
	s.publisher.Publish(event.ProfilePictureUpdated{UserID: userID, NewURL: newURL})
	return nil
}
