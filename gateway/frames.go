// Package gateway terminates websocket connections and translates
// between wire frames and the registry's operations.
package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-gateway/domain"
)

// Frame is the wire envelope shared by both directions:
// a kind discriminator plus an opaque payload whose schema depends on it.
type Frame struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound kinds.
const (
	KindSendMessage = "send-message"
)

// Outbound kinds.
const (
	KindNewMessage            = "new-message"
	KindMessageDeleted        = "message-deleted"
	KindParticipantsChanged   = "participants-changed"
	KindProfilePictureUpdated = "profile-picture-updated"
	KindError                 = "error"
)

// ErrCodeInvalidPayload is sent back when an inbound frame cannot be
// parsed or validated. The connection stays open.
const ErrCodeInvalidPayload = "invalid-payload"

// SendMessagePayload is the only client-originated action.
type SendMessagePayload struct {
	ChatID    string  `json:"chatId" validate:"required,uuid"`
	Content   string  `json:"content" validate:"required,max=4000"`
	MessageID *string `json:"messageId,omitempty" validate:"omitempty,uuid"`
}

// ChatMessagePayload mirrors a stored message for new-message frames.
type ChatMessagePayload struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	SenderID  string    `json:"senderId"`
}

type DeleteMessagePayload struct {
	ChatID    domain.ChatID `json:"chatId"`
	MessageID string        `json:"messageId"`
}

type ParticipantsChangedPayload struct {
	ChatID domain.ChatID `json:"chatId"`
}

type ProfilePicturePayload struct {
	UserID domain.UserID `json:"userId"`
	NewURL *string       `json:"newUrl"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeFrame serializes an envelope around the given payload.
func EncodeFrame(kind string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Frame{Kind: kind, Payload: body})
}

// DecodeFrame parses the envelope only; payload decoding is left to the
// handler selected by the kind.
func DecodeFrame(raw []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Frame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	if frame.Kind == "" {
		return Frame{}, fmt.Errorf("frame without kind")
	}
	return frame, nil
}

// NewMessageFrame builds the new-message frame broadcast after a
// successful send.
func NewMessageFrame(msg domain.Message) ([]byte, error) {
	return EncodeFrame(KindNewMessage, ChatMessagePayload{
		ID:        msg.ID.String(),
		ChatID:    string(msg.ChatID),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		SenderID:  string(msg.SenderID),
	})
}
