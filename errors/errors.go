package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrMissingCredential  = fmt.Errorf("missing credential")
	ErrInvalidToken       = fmt.Errorf("invalid token")
	ErrChatNotFound       = fmt.Errorf("chat not found")
	ErrNotParticipant     = fmt.Errorf("user is not a chat participant")
	ErrMessageNotFound    = fmt.Errorf("message not found")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrInvalidPictureURL  = fmt.Errorf("invalid profile picture url")
	ErrEmptyWords         = fmt.Errorf("no censored words loaded")
)
