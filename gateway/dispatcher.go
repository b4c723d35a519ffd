package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"chat-gateway/contract"
	"chat-gateway/domain"
	"chat-gateway/moderation"
	"chat-gateway/runtime"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Dispatcher routes inbound frames from authenticated connections.
// It never closes a connection: malformed frames earn an error frame,
// disallowed sends are dropped silently so senders cannot probe chat
// membership through error responses.
type Dispatcher struct {
	log       *slog.Logger
	registry  *runtime.Registry
	fanout    *runtime.Fanout
	store     contract.MessageStore
	validate  *validator.Validate
	moderator moderation.Moderator
}

func NewDispatcher(log *slog.Logger,
	registry *runtime.Registry,
	fanout *runtime.Fanout,
	store contract.MessageStore,
	moderator moderation.Moderator) *Dispatcher {
	return &Dispatcher{
		log:       log,
		registry:  registry,
		fanout:    fanout,
		store:     store,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		moderator: moderator,
	}
}

// OnFrame handles one raw inbound frame from the given connection.
func (d *Dispatcher) OnFrame(ctx context.Context, connID domain.ConnectionID, raw []byte) {
	userID, ok := d.registry.UserForConnection(connID)
	if !ok {
		// The connection raced its own teardown; nothing to answer.
		return
	}

	frame, err := DecodeFrame(raw)
	if err != nil {
		d.log.Debug("Rejecting malformed frame", "conn_id", connID, "error", err)
		d.sendError(connID, "malformed frame")
		return
	}

	switch frame.Kind {
	case KindSendMessage:
		d.handleSendMessage(ctx, connID, userID, frame)
	default:
		d.log.Debug("Ignoring unsupported frame kind",
			"conn_id", connID, "kind", frame.Kind)
	}
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, connID domain.ConnectionID, userID domain.UserID, frame Frame) {
	payload, err := decodePayload[SendMessagePayload](frame)
	if err != nil {
		d.log.Debug("Rejecting send-message payload", "conn_id", connID, "error", err)
		d.sendError(connID, "invalid send-message payload")
		return
	}
	if err := d.validate.Struct(payload); err != nil {
		d.log.Debug("Rejecting send-message payload", "conn_id", connID, "error", err)
		d.sendError(connID, "invalid send-message payload")
		return
	}

	chatID := domain.ChatID(payload.ChatID)
	if !d.registry.IsMember(userID, chatID) {
		// Silent drop: a non-member must not learn whether the chat exists.
		d.log.Debug("Dropping send-message from non-member",
			"user_id", userID, "chat_id", chatID)
		return
	}

	cmd := contract.SendMessage{
		ChatID:   chatID,
		SenderID: userID,
		Content:  d.censor(payload.Content, userID),
	}
	if payload.MessageID != nil {
		id, err := uuid.Parse(*payload.MessageID)
		if err != nil {
			d.sendError(connID, "invalid send-message payload")
			return
		}
		cmd.MessageID = &id
	}

	msg, err := d.store.SendMessage(ctx, cmd)
	if err != nil {
		d.log.Error("Failed to store message",
			"user_id", userID, "chat_id", chatID, "error", err)
		return
	}

	out, err := NewMessageFrame(msg)
	if err != nil {
		d.log.Error("Failed to encode new-message frame", "error", err)
		return
	}
	d.fanout.BroadcastToChat(chatID, out)
}

// censor runs the content through the word filter and logs what was
// caught together with the detected language.
func (d *Dispatcher) censor(content string, userID domain.UserID) string {
	sanitized, foundWords := d.moderator.Censor(content)
	if len(foundWords) > 0 {
		info := whatlanggo.Detect(content)
		d.log.Warn("Censored message content",
			"user_id", userID,
			"lang", info.Lang.Iso6391(),
			"words", foundWords)
	}
	return sanitized
}

// sendError answers the originator with a single error frame. The
// connection stays open.
func (d *Dispatcher) sendError(connID domain.ConnectionID, message string) {
	out, err := EncodeFrame(KindError, ErrorPayload{
		Code:    ErrCodeInvalidPayload,
		Message: message,
	})
	if err != nil {
		d.log.Error("Failed to encode error frame", "error", err)
		return
	}
	d.fanout.SendToConnection(connID, out)
}

func decodePayload[T any](frame Frame) (T, error) {
	var payload T
	if len(frame.Payload) == 0 {
		return payload, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
