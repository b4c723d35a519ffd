//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chat-gateway/domain"
	errs "chat-gateway/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatRepository interface {
	CreateChat(creator domain.UserID, participants []domain.UserID) (domain.Chat, error)
	GetChat(chatID domain.ChatID) (domain.Chat, error)
	AddParticipants(chatID domain.ChatID, userIDs []domain.UserID) (domain.Chat, error)
	RemoveParticipant(chatID domain.ChatID, userID domain.UserID) (domain.Chat, error)
	FindChatsForUser(userID domain.UserID) ([]domain.ChatID, error)
}

// ChatRepository stores one JSON row per chat under "chat:{chat_id}",
// plus one empty index row per membership under "member:{user_id}:{chat_id}"
// so FindChatsForUser is a single prefix scan instead of a full table walk.
type ChatRepository struct {
	db *badger.DB
}

func NewChatRepository(db *badger.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

type diskChat struct {
	ID           string   `json:"id"`
	CreatedBy    string   `json:"createdBy"`
	Participants []string `json:"participants"`
	CreatedAt    int64    `json:"createdAt"`
}

func chatKey(chatID domain.ChatID) []byte {
	return []byte("chat:" + string(chatID))
}

func memberKey(userID domain.UserID, chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", userID, chatID))
}

// CreateChat persists a new chat with the creator always included in the
// participant set.
func (c *ChatRepository) CreateChat(creator domain.UserID, participants []domain.UserID) (domain.Chat, error) {
	chat := domain.Chat{
		ID:           domain.ChatID(uuid.NewString()),
		CreatedBy:    creator,
		Participants: lo.Uniq(append([]domain.UserID{creator}, participants...)),
		CreatedAt:    time.Now().UTC(),
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		if err := writeChatLocked(txn, chat); err != nil {
			return err
		}
		for _, userID := range chat.Participants {
			if err := txn.Set(memberKey(userID, chat.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

func (c *ChatRepository) GetChat(chatID domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.View(func(txn *badger.Txn) error {
		found, err := readChatLocked(txn, chatID)
		if err != nil {
			return err
		}
		chat = found
		return nil
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// AddParticipants merges the given users into the chat's participant set
// and writes their membership index rows in the same transaction.
func (c *ChatRepository) AddParticipants(chatID domain.ChatID, userIDs []domain.UserID) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.Update(func(txn *badger.Txn) error {
		found, err := readChatLocked(txn, chatID)
		if err != nil {
			return err
		}
		found.Participants = lo.Uniq(append(found.Participants, userIDs...))
		if err := writeChatLocked(txn, found); err != nil {
			return err
		}
		for _, userID := range userIDs {
			if err := txn.Set(memberKey(userID, chatID), nil); err != nil {
				return err
			}
		}
		chat = found
		return nil
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// RemoveParticipant drops one user from the chat and deletes the
// membership index row. Removing a non-participant is an error.
func (c *ChatRepository) RemoveParticipant(chatID domain.ChatID, userID domain.UserID) (domain.Chat, error) {
	var chat domain.Chat
	err := c.db.Update(func(txn *badger.Txn) error {
		found, err := readChatLocked(txn, chatID)
		if err != nil {
			return err
		}
		if !found.HasParticipant(userID) {
			return errs.ErrNotParticipant
		}
		found.Participants = lo.Without(found.Participants, userID)
		if err := writeChatLocked(txn, found); err != nil {
			return err
		}
		if err := txn.Delete(memberKey(userID, chatID)); err != nil {
			return err
		}
		chat = found
		return nil
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// FindChatsForUser walks the user's membership index rows.
func (c *ChatRepository) FindChatsForUser(userID domain.UserID) ([]domain.ChatID, error) {
	var chatIDs []domain.ChatID
	prefixStr := fmt.Sprintf("member:%s:", userID)
	err := c.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			chatIDs = append(chatIDs, domain.ChatID(key[len(prefixStr):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chatIDs, nil
}

func readChatLocked(txn *badger.Txn, chatID domain.ChatID) (domain.Chat, error) {
	item, err := txn.Get(chatKey(chatID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.Chat{}, errs.ErrChatNotFound
		}
		return domain.Chat{}, err
	}
	var disk diskChat
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &disk)
	}); err != nil {
		return domain.Chat{}, err
	}
	return toChat(disk), nil
}

func writeChatLocked(txn *badger.Txn, chat domain.Chat) error {
	bytes, err := json.Marshal(fromChat(chat))
	if err != nil {
		return err
	}
	return txn.Set(chatKey(chat.ID), bytes)
}

func fromChat(chat domain.Chat) diskChat {
	return diskChat{
		ID:        string(chat.ID),
		CreatedBy: string(chat.CreatedBy),
		Participants: lo.Map(chat.Participants, func(id domain.UserID, _ int) string {
			return string(id)
		}),
		CreatedAt: chat.CreatedAt.UnixNano(),
	}
}

func toChat(disk diskChat) domain.Chat {
	return domain.Chat{
		ID:        domain.ChatID(disk.ID),
		CreatedBy: domain.UserID(disk.CreatedBy),
		Participants: lo.Map(disk.Participants, func(id string, _ int) domain.UserID {
			return domain.UserID(id)
		}),
		CreatedAt: time.Unix(0, disk.CreatedAt).UTC(),
	}
}
