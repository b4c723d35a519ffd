package runtime

import (
	"log/slog"

	"chat-gateway/domain"
)

// Fanout resolves chat or user ids to live connections and delivers an
// already-serialized frame to each of them. Callers serialize once; the
// fanout never re-encodes per target.
//
// Delivery failures are isolated per connection: a closed socket or a
// write error is logged and the remaining targets still receive the
// frame. A dead connection is reaped by the liveness sweep, not here.
type Fanout struct {
	log      *slog.Logger
	registry *Registry
}

func NewFanout(log *slog.Logger, registry *Registry) *Fanout {
	return &Fanout{log: log, registry: registry}
}

type target struct {
	connID domain.ConnectionID
	userID domain.UserID
	conn   Conn
}

// BroadcastToChat delivers the payload to every connection of every user
// currently indexed under the chat. It goes through SendToUser per
// distinct user, so a user with several devices receives the frame once
// per device.
func (f *Fanout) BroadcastToChat(chatID domain.ChatID, payload []byte) {
	f.registry.mu.RLock()
	users := make(Set[domain.UserID])
	for connID := range f.registry.chatConns[chatID] {
		if s, ok := f.registry.sessions[connID]; ok {
			users[s.userID] = struct{}{}
		}
	}
	f.registry.mu.RUnlock()

	for userID := range users {
		f.SendToUser(userID, payload)
	}
}

// SendToUser delivers the payload to every open connection of one user.
func (f *Fanout) SendToUser(userID domain.UserID, payload []byte) {
	f.registry.mu.RLock()
	targets := make([]target, 0, len(f.registry.userConns[userID]))
	for connID := range f.registry.userConns[userID] {
		if s, ok := f.registry.sessions[connID]; ok {
			targets = append(targets, target{connID: connID, userID: userID, conn: s.conn})
		}
	}
	f.registry.mu.RUnlock()

	f.deliver(targets, payload)
}

// SendToConnection delivers the payload to a single connection, used for
// error frames addressed to the originator. Unknown ids are ignored:
// the connection lost a race with its own disconnect.
func (f *Fanout) SendToConnection(connID domain.ConnectionID, payload []byte) {
	f.registry.mu.RLock()
	s, ok := f.registry.sessions[connID]
	f.registry.mu.RUnlock()
	if !ok {
		return
	}
	f.deliver([]target{{connID: connID, userID: s.userID, conn: s.conn}}, payload)
}

// BroadcastToContacts delivers the payload once per connection across
// the union of every chat the user belongs to. Used for events about a
// user (profile picture changes) that every contact should see exactly
// once even when they share several chats with that user.
func (f *Fanout) BroadcastToContacts(userID domain.UserID, payload []byte) {
	f.registry.mu.RLock()
	seen := make(Set[domain.ConnectionID])
	var targets []target
	for chatID := range f.registry.userChats[userID] {
		for connID := range f.registry.chatConns[chatID] {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			if s, ok := f.registry.sessions[connID]; ok {
				targets = append(targets, target{connID: connID, userID: s.userID, conn: s.conn})
			}
		}
	}
	f.registry.mu.RUnlock()

	f.deliver(targets, payload)
}

// deliver writes the payload to each target independently. One failing
// unit of work must not abort the batch.
func (f *Fanout) deliver(targets []target, payload []byte) {
	if len(payload) == 0 {
		return
	}
	for _, t := range targets {
		if err := t.conn.Send(payload); err != nil {
			f.log.Error("Failed to deliver frame",
				"conn_id", t.connID,
				"user_id", t.userID,
				"error", err)
		}
	}
}
