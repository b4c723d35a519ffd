package runtime

import (
	"fmt"
	"log/slog"

	"chat-gateway/domain/event"
)

// EventBus carries committed domain events from the services to the
// gateway's event worker. Publish must only be called after the
// originating transaction has committed: the registry must never learn
// about a membership change before the chat lookup can report it.
type EventBus struct {
	log    *slog.Logger
	events chan event.DomainEvent
}

func NewEventBus(log *slog.Logger, bufferSize int) *EventBus {
	return &EventBus{log: log, events: make(chan event.DomainEvent, bufferSize)}
}

// Publish enqueues an event without blocking the committing service.
// A full buffer drops the event: live fan-out is best effort and clients
// resynchronize from persistence on reconnect.
func (b *EventBus) Publish(e event.DomainEvent) {
	select {
	case b.events <- e:
	default:
		b.log.Warn(fmt.Sprintf("Event channel full, dropping %s", e.Name()))
	}
}

// Events exposes the consuming side for the domain-event worker.
func (b *EventBus) Events() <-chan event.DomainEvent {
	return b.events
}
