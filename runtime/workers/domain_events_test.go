package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"chat-gateway/domain"
	"chat-gateway/domain/event"
	"chat-gateway/gateway"
	"chat-gateway/mocks"
	"chat-gateway/runtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func decodeFrames(t *testing.T, raw [][]byte) []gateway.Frame {
	t.Helper()
	frames := make([]gateway.Frame, 0, len(raw))
	for _, b := range raw {
		var frame gateway.Frame
		require.NoError(t, json.Unmarshal(b, &frame))
		frames = append(frames, frame)
	}
	return frames
}

func registerMember(t *testing.T, registry *runtime.Registry,
	lookup *mocks.MockChatLookup, userID domain.UserID, chats []domain.ChatID) *probeConn {
	t.Helper()
	lookup.EXPECT().
		FindChatsForUser(gomock.Any(), userID).
		Return(chats, nil).
		Times(1)
	conn := &probeConn{}
	_, err := registry.Register(context.Background(), conn, userID)
	require.NoError(t, err)
	return conn
}

func newEventWorker(t *testing.T, ctrl *gomock.Controller) (*DomainEventWorker, *runtime.Registry, *mocks.MockChatLookup) {
	t.Helper()
	lookup := mocks.NewMockChatLookup(ctrl)
	registry := runtime.NewRegistry(slog.Default(), lookup)
	fanout := runtime.NewFanout(slog.Default(), registry)
	worker := NewDomainEventWorker(slog.Default(), nil, registry, fanout)
	return worker, registry, lookup
}

func TestDomainEventWorker_ParticipantsJoined(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	worker, registry, lookup := newEventWorker(t, ctrl)

	aliceConn := registerMember(t, registry, lookup, "alice", []domain.ChatID{"chat-1"})
	bobConn := registerMember(t, registry, lookup, "bob", nil)

	worker.Handle(event.ParticipantsJoined{ChatID: "chat-1", UserIDs: []domain.UserID{"bob"}})

	// Bob is indexed before the frame goes out, so he receives it too
	req.True(registry.IsMember("bob", "chat-1"))

	aliceFrames := decodeFrames(t, aliceConn.frames())
	req.Len(aliceFrames, 1)
	req.Equal(gateway.KindParticipantsChanged, aliceFrames[0].Kind)

	bobFrames := decodeFrames(t, bobConn.frames())
	req.Len(bobFrames, 1)
	req.Equal(gateway.KindParticipantsChanged, bobFrames[0].Kind)
}

func TestDomainEventWorker_ParticipantLeftPrunesBeforeBroadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	worker, registry, lookup := newEventWorker(t, ctrl)

	aliceConn := registerMember(t, registry, lookup, "alice", []domain.ChatID{"chat-1"})
	bobConn := registerMember(t, registry, lookup, "bob", []domain.ChatID{"chat-1"})

	worker.Handle(event.ParticipantLeft{ChatID: "chat-1", UserID: "bob"})

	// Bob was removed from the index first: he must not see the frame
	req.False(registry.IsMember("bob", "chat-1"))
	req.Empty(bobConn.frames())

	aliceFrames := decodeFrames(t, aliceConn.frames())
	req.Len(aliceFrames, 1)
	req.Equal(gateway.KindParticipantsChanged, aliceFrames[0].Kind)

	var payload gateway.ParticipantsChangedPayload
	req.NoError(json.Unmarshal(aliceFrames[0].Payload, &payload))
	req.Equal(domain.ChatID("chat-1"), payload.ChatID)
}

func TestDomainEventWorker_MessageDeleted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	worker, registry, lookup := newEventWorker(t, ctrl)

	aliceConn := registerMember(t, registry, lookup, "alice", []domain.ChatID{"chat-1"})
	messageID := uuid.New()

	worker.Handle(event.MessageDeleted{ChatID: "chat-1", MessageID: messageID})

	frames := decodeFrames(t, aliceConn.frames())
	req.Len(frames, 1)
	req.Equal(gateway.KindMessageDeleted, frames[0].Kind)

	var payload gateway.DeleteMessagePayload
	req.NoError(json.Unmarshal(frames[0].Payload, &payload))
	req.Equal(messageID.String(), payload.MessageID)
	req.Equal(domain.ChatID("chat-1"), payload.ChatID)
}

func TestDomainEventWorker_ProfilePictureUpdated(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	worker, registry, lookup := newEventWorker(t, ctrl)

	// Bob shares two chats with Alice and still receives one frame
	aliceConn := registerMember(t, registry, lookup, "alice", []domain.ChatID{"chat-1", "chat-2"})
	bobConn := registerMember(t, registry, lookup, "bob", []domain.ChatID{"chat-1", "chat-2"})

	newURL := "https://cdn.example.com/alice.png"
	worker.Handle(event.ProfilePictureUpdated{UserID: "alice", NewURL: &newURL})

	bobFrames := decodeFrames(t, bobConn.frames())
	req.Len(bobFrames, 1)
	req.Equal(gateway.KindProfilePictureUpdated, bobFrames[0].Kind)

	var payload gateway.ProfilePicturePayload
	req.NoError(json.Unmarshal(bobFrames[0].Payload, &payload))
	req.Equal(domain.UserID("alice"), payload.UserID)
	req.NotNil(payload.NewURL)
	req.Equal(newURL, *payload.NewURL)

	req.Len(decodeFrames(t, aliceConn.frames()), 1)
}

func TestDomainEventWorker_DrainsChannelUntilCancel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lookup := mocks.NewMockChatLookup(ctrl)
	registry := runtime.NewRegistry(slog.Default(), lookup)
	fanout := runtime.NewFanout(slog.Default(), registry)

	bus := runtime.NewEventBus(slog.Default(), 8)
	worker := NewDomainEventWorker(slog.Default(), bus.Events(), registry, fanout)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	bus.Publish(event.MessageDeleted{ChatID: "chat-1", MessageID: uuid.New()})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(500 * time.Millisecond):
		req.Fail("worker should stop on context cancellation")
	}
}
