// Package runtime owns the live-connection state of the gateway: the
// session directory, the membership indices derived from it, and the
// fan-out that resolves a chat or user id to the connections that must
// receive a frame. It contains no business rules; those live in services.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-gateway/contract"
	"chat-gateway/domain"

	"github.com/google/uuid"
)

type Set[T comparable] map[T]struct{}

// CloseCode is the policy reason a connection is closed with. The
// transport layer maps it to its own status codes.
type CloseCode int

const (
	CloseAuthFailure CloseCode = iota
	CloseTransportError
	CloseLivenessTimeout
)

// Conn is the transport half of a session as the registry sees it.
// Implementations must be safe for use from multiple goroutines.
type Conn interface {
	Send(payload []byte) error
	Ping() error
	Close(code CloseCode, reason string) error
}

// session is the directory record for one live connection.
type session struct {
	id       domain.ConnectionID
	userID   domain.UserID
	conn     Conn
	lastPong time.Time
}

// Probe is a point-in-time copy of a session handed to the liveness
// sweep, so probing never happens under the registry lock.
type Probe struct {
	ID       domain.ConnectionID
	UserID   domain.UserID
	LastPong time.Time
	Conn     Conn
}

// Registry is the authoritative store of live connections and the three
// derived indices used for fan-out resolution:
//
//	sessions  : connection -> session record
//	userConns : user -> connections (a user may have several devices)
//	userChats : user -> cached chat memberships
//	chatConns : chat -> connections of users believed to be members
//
// All four maps are guarded by one RWMutex. Every logical mutation takes
// a single write acquisition so readers never observe a partially
// updated state; fan-out resolution only takes the read side.
type Registry struct {
	mu    sync.RWMutex
	log   *slog.Logger
	chats contract.ChatLookup
	clock func() time.Time

	sessions  map[domain.ConnectionID]*session
	userConns map[domain.UserID]Set[domain.ConnectionID]
	userChats map[domain.UserID]Set[domain.ChatID]
	chatConns map[domain.ChatID]Set[domain.ConnectionID]

	// seeding tracks users whose first-connection membership lookup is
	// in flight, so concurrent connects of the same user trigger it once.
	seeding Set[domain.UserID]
}

func NewRegistry(log *slog.Logger, chats contract.ChatLookup) *Registry {
	return &Registry{
		log:       log,
		chats:     chats,
		clock:     time.Now,
		sessions:  make(map[domain.ConnectionID]*session),
		userConns: make(map[domain.UserID]Set[domain.ConnectionID]),
		userChats: make(map[domain.UserID]Set[domain.ChatID]),
		chatConns: make(map[domain.ChatID]Set[domain.ConnectionID]),
		seeding:   make(Set[domain.UserID]),
	}
}

// WithClock injects a deterministic clock for tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Register stores a new session for an already-authenticated user and
// returns its connection id.
//
// The first connection of a user triggers a membership lookup against
// the chat service. That call may be slow, so it runs outside the
// exclusive section; only the resulting set-updates are applied under
// the write lock. If the lookup fails the registration is rolled back
// and the caller must close the connection.
func (r *Registry) Register(ctx context.Context, conn Conn, userID domain.UserID) (domain.ConnectionID, error) {
	id := domain.ConnectionID(uuid.NewString())
	now := r.clock()

	r.mu.Lock()
	r.sessions[id] = &session{id: id, userID: userID, conn: conn, lastPong: now}
	if r.userConns[userID] == nil {
		r.userConns[userID] = make(Set[domain.ConnectionID])
	}
	r.userConns[userID][id] = struct{}{}

	if chats, seeded := r.userChats[userID]; seeded {
		// Memberships are already cached: just index the new connection.
		for chatID := range chats {
			r.chatConnsLocked(chatID)[id] = struct{}{}
		}
		r.mu.Unlock()
		return id, nil
	}
	if _, inFlight := r.seeding[userID]; inFlight {
		// Another connection of the same user is fetching memberships;
		// the seed applies to every connection present at apply time.
		r.mu.Unlock()
		return id, nil
	}
	r.seeding[userID] = struct{}{}
	r.mu.Unlock()

	chatIDs, lookupErr := r.chats.FindChatsForUser(ctx, userID)

	r.mu.Lock()
	delete(r.seeding, userID)
	if lookupErr == nil {
		if conns, stillConnected := r.userConns[userID]; stillConnected {
			chats := make(Set[domain.ChatID], len(chatIDs))
			for _, chatID := range chatIDs {
				chats[chatID] = struct{}{}
				set := r.chatConnsLocked(chatID)
				for connID := range conns {
					set[connID] = struct{}{}
				}
			}
			r.userChats[userID] = chats
		}
	}
	r.mu.Unlock()

	if lookupErr != nil {
		r.Unregister(id)
		return "", fmt.Errorf("membership lookup for user %s: %w", userID, lookupErr)
	}
	return id, nil
}

// chatConnsLocked returns the connection set for a chat, creating it on
// the fly. Callers must hold the write lock.
func (r *Registry) chatConnsLocked(chatID domain.ChatID) Set[domain.ConnectionID] {
	set, ok := r.chatConns[chatID]
	if !ok {
		set = make(Set[domain.ConnectionID])
		r.chatConns[chatID] = set
	}
	return set
}

// Unregister removes a connection from the directory and every index
// referencing it. Calling it twice, or with an unknown id, is a no-op.
// Memberships of a fully-disconnected user are pruned entirely: they add
// no fan-out value and would otherwise grow unbounded.
func (r *Registry) Unregister(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)

	userID := s.userID
	if conns, ok := r.userConns[userID]; ok {
		delete(conns, id)
		if len(conns) == 0 {
			delete(r.userConns, userID)
		}
	}
	for chatID := range r.userChats[userID] {
		if conns, ok := r.chatConns[chatID]; ok {
			delete(conns, id)
			if len(conns) == 0 {
				delete(r.chatConns, chatID)
			}
		}
	}
	if _, stillConnected := r.userConns[userID]; !stillConnected {
		delete(r.userChats, userID)
	}
}

// Touch refreshes the liveness timestamp of a connection. Called by the
// transport layer whenever a pong arrives.
func (r *Registry) Touch(id domain.ConnectionID) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.lastPong = now
	}
}

// Snapshot returns a point-in-time copy of every session, so the
// liveness sweep can probe connections without holding the lock across
// network writes.
func (r *Registry) Snapshot() []Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Probe, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, Probe{ID: s.id, UserID: s.userID, LastPong: s.lastPong, Conn: s.conn})
	}
	return out
}

// OnChatJoined records a new membership and indexes every open
// connection of that user under the chat. Users without any open
// connection are ignored: the cache only tracks connected users.
func (r *Registry) OnChatJoined(userID domain.UserID, chatID domain.ChatID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, connected := r.userConns[userID]
	if !connected {
		return
	}
	chats, ok := r.userChats[userID]
	if !ok {
		chats = make(Set[domain.ChatID])
		r.userChats[userID] = chats
	}
	chats[chatID] = struct{}{}
	set := r.chatConnsLocked(chatID)
	for connID := range conns {
		set[connID] = struct{}{}
	}
}

// OnChatLeft drops a membership and removes the user's connections from
// the chat's index. Empty sets are pruned to keep memory bounded.
func (r *Registry) OnChatLeft(userID domain.UserID, chatID domain.ChatID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chats, ok := r.userChats[userID]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(r.userChats, userID)
		}
	}
	conns, ok := r.chatConns[chatID]
	if !ok {
		return
	}
	for connID := range r.userConns[userID] {
		delete(conns, connID)
	}
	if len(conns) == 0 {
		delete(r.chatConns, chatID)
	}
}

// ConnectionsForChat returns a copy of the chat's connection set, safe
// to iterate while the indices keep moving.
func (r *Registry) ConnectionsForChat(chatID domain.ChatID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyIDs(r.chatConns[chatID])
}

// ConnectionsForUser returns a copy of the user's connection set.
func (r *Registry) ConnectionsForUser(userID domain.UserID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyIDs(r.userConns[userID])
}

// ChatsForUser returns a copy of the user's cached memberships.
func (r *Registry) ChatsForUser(userID domain.UserID) []domain.ChatID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ChatID, 0, len(r.userChats[userID]))
	for chatID := range r.userChats[userID] {
		out = append(out, chatID)
	}
	return out
}

// UserForConnection resolves the owner of a connection.
func (r *Registry) UserForConnection(id domain.ConnectionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", false
	}
	return s.userID, true
}

// IsMember reports whether the chat is part of the user's cached
// memberships. Used by the dispatcher to gate send-message.
func (r *Registry) IsMember(userID domain.UserID, chatID domain.ChatID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userChats[userID][chatID]
	return ok
}

// Stats returns gauge values for the health worker.
func (r *Registry) Stats() (connections, users, chats int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.userConns), len(r.chatConns)
}

func copyIDs(set Set[domain.ConnectionID]) []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// audit checks the cross-reference invariant: every connection reachable
// from chatConns belongs to a user present in userConns whose cached
// memberships include that chat. Test helper, not called in production.
func (r *Registry) audit() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for chatID, conns := range r.chatConns {
		for connID := range conns {
			s, ok := r.sessions[connID]
			if !ok {
				return fmt.Errorf("chat %s references unknown connection %s", chatID, connID)
			}
			if _, ok := r.userConns[s.userID][connID]; !ok {
				return fmt.Errorf("connection %s missing from user %s index", connID, s.userID)
			}
			if _, ok := r.userChats[s.userID][chatID]; !ok {
				return fmt.Errorf("user %s indexed under chat %s without membership", s.userID, chatID)
			}
		}
	}
	for userID, conns := range r.userConns {
		if len(conns) == 0 {
			return fmt.Errorf("user %s kept with zero connections", userID)
		}
		for connID := range conns {
			if _, ok := r.sessions[connID]; !ok {
				return fmt.Errorf("user %s references unknown connection %s", userID, connID)
			}
		}
	}
	for userID := range r.userChats {
		if _, ok := r.userConns[userID]; !ok {
			return fmt.Errorf("memberships kept for fully-disconnected user %s", userID)
		}
	}
	return nil
}
