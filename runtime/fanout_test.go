package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"chat-gateway/domain"
	"chat-gateway/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func seedUser(t *testing.T, registry *Registry, lookup *mocks.MockChatLookup,
	userID domain.UserID, chats []domain.ChatID, conns ...*fakeConn) []domain.ConnectionID {
	t.Helper()
	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return(chats, nil).
		Times(1)
	ids := make([]domain.ConnectionID, 0, len(conns))
	for _, conn := range conns {
		id, err := registry.Register(context.Background(), conn, userID)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestFanout_BroadcastToChat(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	fanout := NewFanout(slog.Default(), registry)

	alicePhone, aliceLaptop := &fakeConn{}, &fakeConn{}
	bobPhone := &fakeConn{}
	strangerConn := &fakeConn{}

	seedUser(t, registry, lookup, "alice", []domain.ChatID{"chat-1"}, alicePhone, aliceLaptop)
	seedUser(t, registry, lookup, "bob", []domain.ChatID{"chat-1"}, bobPhone)
	seedUser(t, registry, lookup, "stranger", []domain.ChatID{"chat-2"}, strangerConn)

	fanout.BroadcastToChat("chat-1", []byte(`{"kind":"new-message"}`))

	// Every device of every member receives the frame exactly once
	req.Equal(1, alicePhone.sentCount())
	req.Equal(1, aliceLaptop.sentCount())
	req.Equal(1, bobPhone.sentCount())
	// Non-members receive nothing
	req.Zero(strangerConn.sentCount())
}

func TestFanout_DeliveryFailureIsIsolated(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	fanout := NewFanout(slog.Default(), registry)

	broken := &fakeConn{sendErr: fmt.Errorf("broken pipe")}
	healthy := &fakeConn{}

	seedUser(t, registry, lookup, "alice", []domain.ChatID{"chat-1"}, broken)
	seedUser(t, registry, lookup, "bob", []domain.ChatID{"chat-1"}, healthy)

	fanout.BroadcastToChat("chat-1", []byte("payload"))

	req.Equal(1, healthy.sentCount())
	// The broken connection stays registered; eviction is the liveness
	// worker's job
	req.Len(registry.ConnectionsForChat("chat-1"), 2)
}

func TestFanout_SendToConnection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	fanout := NewFanout(slog.Default(), registry)

	conn := &fakeConn{}
	ids := seedUser(t, registry, lookup, "alice", nil, conn)

	fanout.SendToConnection(ids[0], []byte("direct"))
	req.Equal(1, conn.sentCount())

	// Unknown connections are ignored
	fanout.SendToConnection("ghost", []byte("direct"))
	req.Equal(1, conn.sentCount())
}

func TestFanout_BroadcastToContactsDeduplicates(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	fanout := NewFanout(slog.Default(), registry)

	aliceConn := &fakeConn{}
	bobConn := &fakeConn{}

	// Bob shares two chats with Alice; he must still receive the frame once
	seedUser(t, registry, lookup, "alice", []domain.ChatID{"chat-1", "chat-2"}, aliceConn)
	seedUser(t, registry, lookup, "bob", []domain.ChatID{"chat-1", "chat-2"}, bobConn)

	fanout.BroadcastToContacts("alice", []byte(`{"kind":"profile-picture-updated"}`))

	req.Equal(1, bobConn.sentCount())
	req.Equal(1, aliceConn.sentCount())
}

func TestFanout_EmptyPayloadIsDropped(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := NewRegistry(slog.Default(), lookup)
	fanout := NewFanout(slog.Default(), registry)

	conn := &fakeConn{}
	seedUser(t, registry, lookup, "alice", []domain.ChatID{"chat-1"}, conn)

	fanout.BroadcastToChat("chat-1", nil)
	req.Zero(conn.sentCount())
}
