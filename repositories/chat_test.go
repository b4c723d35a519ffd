package repositories

import (
	"testing"

	"chat-gateway/domain"
	errs "chat-gateway/errors"

	"github.com/stretchr/testify/require"
)

func TestChatRepository_CreateChat(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(newTestDB(t))

	chat, err := repo.CreateChat("alice", []domain.UserID{"bob", "bob", "carol"})
	req.NoError(err)
	req.NotEmpty(chat.ID)
	req.EqualValues("alice", chat.CreatedBy)
	// Creator is always a participant, duplicates are collapsed
	req.ElementsMatch([]domain.UserID{"alice", "bob", "carol"}, chat.Participants)

	found, err := repo.GetChat(chat.ID)
	req.NoError(err)
	req.ElementsMatch(chat.Participants, found.Participants)

	// Membership index rows exist for everyone
	for _, userID := range chat.Participants {
		chatIDs, err := repo.FindChatsForUser(userID)
		req.NoError(err)
		req.Equal([]domain.ChatID{chat.ID}, chatIDs)
	}
}

func TestChatRepository_GetChatNotFound(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(newTestDB(t))

	_, err := repo.GetChat("missing")
	req.ErrorIs(err, errs.ErrChatNotFound)
}

func TestChatRepository_AddParticipants(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(newTestDB(t))

	chat, err := repo.CreateChat("alice", nil)
	req.NoError(err)

	updated, err := repo.AddParticipants(chat.ID, []domain.UserID{"bob"})
	req.NoError(err)
	req.ElementsMatch([]domain.UserID{"alice", "bob"}, updated.Participants)

	chatIDs, err := repo.FindChatsForUser("bob")
	req.NoError(err)
	req.Equal([]domain.ChatID{chat.ID}, chatIDs)

	// Adding again changes nothing
	updated, err = repo.AddParticipants(chat.ID, []domain.UserID{"bob"})
	req.NoError(err)
	req.Len(updated.Participants, 2)
}

func TestChatRepository_RemoveParticipant(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(newTestDB(t))

	chat, err := repo.CreateChat("alice", []domain.UserID{"bob"})
	req.NoError(err)

	updated, err := repo.RemoveParticipant(chat.ID, "bob")
	req.NoError(err)
	req.Equal([]domain.UserID{"alice"}, updated.Participants)

	// The index row is gone with the membership
	chatIDs, err := repo.FindChatsForUser("bob")
	req.NoError(err)
	req.Empty(chatIDs)

	// Leaving twice is an error
	_, err = repo.RemoveParticipant(chat.ID, "bob")
	req.ErrorIs(err, errs.ErrNotParticipant)
}

func TestChatRepository_FindChatsForUserSpansChats(t *testing.T) {
	req := require.New(t)
	repo := NewChatRepository(newTestDB(t))

	first, err := repo.CreateChat("alice", []domain.UserID{"bob"})
	req.NoError(err)
	second, err := repo.CreateChat("bob", nil)
	req.NoError(err)
	_, err = repo.CreateChat("carol", nil)
	req.NoError(err)

	chatIDs, err := repo.FindChatsForUser("bob")
	req.NoError(err)
	req.ElementsMatch([]domain.ChatID{first.ID, second.ID}, chatIDs)
}
