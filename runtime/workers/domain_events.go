package workers

import (
	"context"
	"log/slog"

	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"chat-gateway/gateway"
	"chat-gateway/runtime"
)

// DomainEventWorker drains the event bus and turns committed domain
// events into index mutations and outbound frames. The index mutation
// always happens before the broadcast: a frame announcing a membership
// change must be routed against the post-change indices.
type DomainEventWorker struct {
	log      *slog.Logger
	events   <-chan event.DomainEvent
	registry *runtime.Registry
	fanout   *runtime.Fanout
}

func NewDomainEventWorker(log *slog.Logger,
	events <-chan event.DomainEvent,
	registry *runtime.Registry,
	fanout *runtime.Fanout) *DomainEventWorker {
	return &DomainEventWorker{log: log, events: events, registry: registry, fanout: fanout}
}

func (w *DomainEventWorker) Run(ctx context.Context) error {
	w.log.Info("Starting domain event worker")
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case e, ok := <-w.events:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.Handle(e)
		}
	}
}

// Handle applies one event. Exported so tests can drive the worker
// synchronously.
func (w *DomainEventWorker) Handle(e event.DomainEvent) {
	switch evt := e.(type) {
	case event.ParticipantsJoined:
		for _, userID := range evt.UserIDs {
			w.registry.OnChatJoined(userID, evt.ChatID)
		}
		w.broadcastToChat(evt.ChatID, gateway.KindParticipantsChanged,
			gateway.ParticipantsChangedPayload{ChatID: evt.ChatID})

	case event.ParticipantLeft:
		w.registry.OnChatLeft(evt.UserID, evt.ChatID)
		w.broadcastToChat(evt.ChatID, gateway.KindParticipantsChanged,
			gateway.ParticipantsChangedPayload{ChatID: evt.ChatID})

	case event.MessageDeleted:
		w.broadcastToChat(evt.ChatID, gateway.KindMessageDeleted,
			gateway.DeleteMessagePayload{
				ChatID:    evt.ChatID,
				MessageID: evt.MessageID.String(),
			})

	case event.ProfilePictureUpdated:
		payload, err := gateway.EncodeFrame(gateway.KindProfilePictureUpdated,
			gateway.ProfilePicturePayload{UserID: evt.UserID, NewURL: evt.NewURL})
		if err != nil {
			w.log.Error("Failed to encode frame", "event", e.Name(), "error", err)
			return
		}
		w.fanout.BroadcastToContacts(evt.UserID, payload)

	default:
		w.log.Debug("Ignoring unhandled event", "event", e.Name())
	}
}

func (w *DomainEventWorker) broadcastToChat(chatID domain.ChatID, kind string, payload any) {
	frame, err := gateway.EncodeFrame(kind, payload)
	if err != nil {
		w.log.Error("Failed to encode frame", "kind", kind, "error", err)
		return
	}
	w.fanout.BroadcastToChat(chatID, frame)
}
