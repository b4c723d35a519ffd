//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
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
)

type IUserRepository interface {
	CreateUser(username, email, hashedPassword string) (User, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(userID domain.UserID) (User, error)
	UpdateProfilePicture(userID domain.UserID, newURL *string) (User, error)
}

// UserRepository stores one JSON row per account under "user:{email}"
// plus a "uid:{user_id}" pointer row, so lookups work from either side.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type User struct {
	ID                string  `json:"id"`
	Username          string  `json:"username"`
	Email             string  `json:"email"`
	PasswordHash      string  `json:"passwordHash"`
	ProfilePictureURL *string `json:"profilePictureUrl,omitempty"`
	CreatedAt         int64   `json:"createdAt"`
}

func userKey(email string) []byte {
	return []byte("user:" + email)
}

func uidKey(userID domain.UserID) []byte {
	return []byte("uid:" + string(userID))
}

// CreateUser persists a new account. The email must be unused.
func (u *UserRepository) CreateUser(username, email, hashedPassword string) (User, error) {
	user := User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().Unix(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userKey(email)); err == nil {
			return errs.ErrUserAlreadyExists
		}
		if err := txn.Set(userKey(email), data); err != nil {
			return err
		}
		return txn.Set(uidKey(domain.UserID(user.ID)), []byte(email))
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		found, err := readUserLocked(txn, email)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUserByID(userID domain.UserID) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		email, err := resolveEmailLocked(txn, userID)
		if err != nil {
			return err
		}
		found, err := readUserLocked(txn, email)
		if err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateProfilePicture sets or clears the picture URL and returns the
// updated account.
func (u *UserRepository) UpdateProfilePicture(userID domain.UserID, newURL *string) (User, error) {
	var user User
	err := u.db.Update(func(txn *badger.Txn) error {
		email, err := resolveEmailLocked(txn, userID)
		if err != nil {
			return err
		}
		found, err := readUserLocked(txn, email)
		if err != nil {
			return err
		}
		found.ProfilePictureURL = newURL
		data, err := json.Marshal(found)
		if err != nil {
			return err
		}
		if err := txn.Set(userKey(email), data); err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func resolveEmailLocked(txn *badger.Txn, userID domain.UserID) (string, error) {
	item, err := txn.Get(uidKey(userID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", errs.ErrUserNotFound
		}
		return "", err
	}
	var email string
	if err := item.Value(func(value []byte) error {
		email = string(value)
		return nil
	}); err != nil {
		return "", err
	}
	return email, nil
}

func readUserLocked(txn *badger.Txn, email string) (User, error) {
	item, err := txn.Get(userKey(email))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return User{}, errs.ErrUserNotFound
		}
		return User{}, err
	}
	var user User
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &user)
	}); err != nil {
		return User{}, err
	}
	return user, nil
}
