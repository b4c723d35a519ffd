package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-gateway/domain"
	"chat-gateway/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeConn records everything the registry and fanout do to a connection.
type fakeConn struct {
	mu      sync.Mutex
	sent    [][]byte
	pings   int
	closed  bool
	code    CloseCode
	sendErr error
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeConn) Close(code CloseCode, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	return nil
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistry_RegisterSeedsMemberships(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)

	userID := domain.UserID("alice")
	chats := []domain.ChatID{"chat-1", "chat-2"}

	// First connection triggers exactly one lookup
	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return(chats, nil).
		Times(1)

	connID, err := registry.Register(context.Background(), &fakeConn{}, userID)

	req.NoError(err)
	req.NotEmpty(connID)
	req.ElementsMatch(chats, registry.ChatsForUser(userID))
	req.Equal([]domain.ConnectionID{connID}, registry.ConnectionsForChat("chat-1"))
	req.True(registry.IsMember(userID, "chat-2"))
	req.NoError(registry.audit())
}

func TestRegistry_SecondDeviceSkipsLookup(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	userID := domain.UserID("alice")

	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return([]domain.ChatID{"chat-1"}, nil).
		Times(1)

	first, err := registry.Register(context.Background(), &fakeConn{}, userID)
	req.NoError(err)
	second, err := registry.Register(context.Background(), &fakeConn{}, userID)
	req.NoError(err)

	// Both devices are indexed under the cached membership
	req.ElementsMatch(
		[]domain.ConnectionID{first, second},
		registry.ConnectionsForChat("chat-1"))
	req.NoError(registry.audit())
}

func TestRegistry_LookupFailureRollsBack(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	userID := domain.UserID("alice")

	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return(nil, fmt.Errorf("store unavailable")).
		Times(1)

	_, err := registry.Register(context.Background(), &fakeConn{}, userID)

	req.Error(err)
	req.Empty(registry.ConnectionsForUser(userID))
	connections, users, chats := registry.Stats()
	req.Zero(connections)
	req.Zero(users)
	req.Zero(chats)
	req.NoError(registry.audit())
}

func TestRegistry_ConcurrentFirstConnections(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	userID := domain.UserID("alice")

	// The in-flight guard allows at most one lookup per burst; a second
	// one may happen if the first already applied before the next
	// connection arrived, never more.
	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return([]domain.ChatID{"chat-1"}, nil).
		MinTimes(1)

	const devices = 8
	var wg sync.WaitGroup
	ids := make([]domain.ConnectionID, devices)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := registry.Register(context.Background(), &fakeConn{}, userID)
			req.NoError(err)
			ids[n] = id
		}(i)
	}
	wg.Wait()

	req.Len(registry.ConnectionsForUser(userID), devices)
	req.True(registry.IsMember(userID, "chat-1"))
	req.NoError(registry.audit())
}

func TestRegistry_UnregisterPrunesEverything(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	userID := domain.UserID("alice")

	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return([]domain.ChatID{"chat-1"}, nil).
		Times(1)

	first, err := registry.Register(context.Background(), &fakeConn{}, userID)
	req.NoError(err)
	second, err := registry.Register(context.Background(), &fakeConn{}, userID)
	req.NoError(err)

	// Dropping one device keeps the memberships alive
	registry.Unregister(first)
	req.True(registry.IsMember(userID, "chat-1"))
	req.Equal([]domain.ConnectionID{second}, registry.ConnectionsForChat("chat-1"))
	req.NoError(registry.audit())

	// Dropping the last device prunes the user entirely
	registry.Unregister(second)
	req.False(registry.IsMember(userID, "chat-1"))
	connections, users, chats := registry.Stats()
	req.Zero(connections)
	req.Zero(users)
	req.Zero(chats)
	req.NoError(registry.audit())

	// Unregister is idempotent
	registry.Unregister(second)
	req.NoError(registry.audit())
}

func TestRegistry_OnChatJoinedAndLeft(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	userID := domain.UserID("alice")

	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return(nil, nil).
		Times(1)

	connID, err := registry.Register(context.Background(), &fakeConn{}, userID)
	req.NoError(err)

	// Joining a chat indexes every open device
	registry.OnChatJoined(userID, "chat-9")
	req.True(registry.IsMember(userID, "chat-9"))
	req.Equal([]domain.ConnectionID{connID}, registry.ConnectionsForChat("chat-9"))
	req.NoError(registry.audit())

	// Leaving prunes the chat index
	registry.OnChatLeft(userID, "chat-9")
	req.False(registry.IsMember(userID, "chat-9"))
	req.Empty(registry.ConnectionsForChat("chat-9"))
	req.NoError(registry.audit())

	// Events about offline users are ignored
	registry.OnChatJoined("nobody", "chat-9")
	req.Empty(registry.ConnectionsForChat("chat-9"))
	req.NoError(registry.audit())
}

func TestRegistry_TouchUpdatesSnapshot(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	lookup.EXPECT().FindChatsForUser(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	registry := NewRegistry(slog.Default(), lookup).WithClock(func() time.Time { return now })

	connID, err := registry.Register(context.Background(), &fakeConn{}, "alice")
	req.NoError(err)

	now = now.Add(45 * time.Second)
	registry.Touch(connID)

	snapshot := registry.Snapshot()
	req.Len(snapshot, 1)
	req.Equal(connID, snapshot[0].ID)
	req.Equal(now, snapshot[0].LastPong)

	// Touching an unknown connection is a no-op
	registry.Touch("ghost")
	req.Len(registry.Snapshot(), 1)
}
