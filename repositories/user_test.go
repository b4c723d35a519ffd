package repositories

import (
	"testing"

	"chat-gateway/domain"
	errs "chat-gateway/errors"

	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))

	created, err := repo.CreateUser("alice", "alice@example.com", "hashed")
	req.NoError(err)
	req.NotEmpty(created.ID)

	byEmail, err := repo.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Equal(created.ID, byEmail.ID)
	req.Equal("alice", byEmail.Username)
	req.Equal("hashed", byEmail.PasswordHash)

	byID, err := repo.GetUserByID(domain.UserID(created.ID))
	req.NoError(err)
	req.Equal(byEmail, byID)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))

	_, err := repo.CreateUser("alice", "alice@example.com", "hashed")
	req.NoError(err)

	_, err = repo.CreateUser("impostor", "alice@example.com", "other")
	req.ErrorIs(err, errs.ErrUserAlreadyExists)
}

func TestUserRepository_NotFound(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))

	_, err := repo.GetUserByEmail("missing@example.com")
	req.ErrorIs(err, errs.ErrUserNotFound)

	_, err = repo.GetUserByID("missing")
	req.ErrorIs(err, errs.ErrUserNotFound)
}

func TestUserRepository_UpdateProfilePicture(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(newTestDB(t))

	created, err := repo.CreateUser("alice", "alice@example.com", "hashed")
	req.NoError(err)

	newURL := "https://cdn.example.com/alice.png"
	updated, err := repo.UpdateProfilePicture(domain.UserID(created.ID), &newURL)
	req.NoError(err)
	req.NotNil(updated.ProfilePictureURL)
	req.Equal(newURL, *updated.ProfilePictureURL)

	// Clearing the picture stores nil
	cleared, err := repo.UpdateProfilePicture(domain.UserID(created.ID), nil)
	req.NoError(err)
	req.Nil(cleared.ProfilePictureURL)

	persisted, err := repo.GetUserByEmail("alice@example.com")
	req.NoError(err)
	req.Nil(persisted.ProfilePictureURL)
}
