//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-gateway/domain"
	errs "chat-gateway/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error)
	GetMessage(chatID domain.ChatID, messageID uuid.UUID) (domain.Message, error)
	DeleteMessage(chatID domain.ChatID, messageID uuid.UUID) error
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// diskMessage is the stored JSON shape of a message.
type diskMessage struct {
	ID       string `json:"id"`
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
	At       int64  `json:"at"`
}

// messageKey builds "msg:{chat_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func messageKey(chatID domain.ChatID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", chatID, at.UnixNano(), id))
}

// StoreMessage persists a message in BadgerDB.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ChatID, message.CreatedAt, message.ID), bytes)
	})
}

// GetMessages retrieves messages for a specific chat using a reverse prefix scan,
// newest first. Thanks to the padded timestamp in the key, messages are naturally
// sorted by time. It stops collecting once the configured limitMessages is reached.
func (m MessageRepository) GetMessages(chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	var byteMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", chatID)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(byteMessages))
	for _, b := range byteMessages {
		var disk diskMessage
		if err = json.Unmarshal(b, &disk); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(disk)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}
	return messages, &lastKey, nil
}

// GetMessage scans the chat's keyspace for the message id suffix. The
// timestamp part of the key is unknown to callers, so a prefix walk is
// the only way in.
func (m MessageRepository) GetMessage(chatID domain.ChatID, messageID uuid.UUID) (domain.Message, error) {
	var found *diskMessage
	suffix := ":" + messageID.String()
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", chatID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			if !strings.HasSuffix(string(item.Key()), suffix) {
				continue
			}
			return item.Value(func(value []byte) error {
				var disk diskMessage
				if err := json.Unmarshal(value, &disk); err != nil {
					return err
				}
				found = &disk
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	if found == nil {
		return domain.Message{}, errs.ErrMessageNotFound
	}
	return toMessage(*found)
}

// DeleteMessage removes the message row. Missing messages are an error:
// the caller uses it to decide whether a deletion event should fire.
func (m MessageRepository) DeleteMessage(chatID domain.ChatID, messageID uuid.UUID) error {
	suffix := ":" + messageID.String()
	return m.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", chatID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if strings.HasSuffix(string(key), suffix) {
				return txn.Delete(key)
			}
		}
		return errs.ErrMessageNotFound
	})
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:       message.ID.String(),
		ChatID:   string(message.ChatID),
		SenderID: string(message.SenderID),
		Content:  message.Content,
		At:       message.CreatedAt.UnixNano(),
	}
}

func toMessage(disk diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:        parsedID,
		ChatID:    domain.ChatID(disk.ChatID),
		SenderID:  domain.UserID(disk.SenderID),
		Content:   disk.Content,
		CreatedAt: time.Unix(0, disk.At).UTC(),
	}, nil
}
