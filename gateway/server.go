package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"chat-gateway/contract"
	"chat-gateway/runtime"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteDeadline = 5 * time.Second
	maxFrameSize         = 64 * 1024
)

// Server upgrades HTTP requests to websocket sessions, authenticates
// them, and pumps inbound frames into the dispatcher. One goroutine per
// connection owns the read side; writes go through the shared wsConn.
type Server struct {
	log           *slog.Logger
	verifier      contract.TokenVerifier
	registry      *runtime.Registry
	dispatcher    *Dispatcher
	upgrader      websocket.Upgrader
	writeDeadline time.Duration
}

func NewServer(log *slog.Logger,
	verifier contract.TokenVerifier,
	registry *runtime.Registry,
	dispatcher *Dispatcher) *Server {
	return &Server{
		log:        log,
		verifier:   verifier,
		registry:   registry,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeDeadline: defaultWriteDeadline,
	}
}

// ServeHTTP handles the websocket handshake on /ws. Authentication runs
// after the upgrade so the client receives a proper close frame instead
// of a bare HTTP error.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := newWSConn(ws, s.writeDeadline)

	userID, err := s.verifier.ResolveUserID(r.Header.Get("Authorization"))
	if err != nil {
		s.log.Warn("Rejecting unauthenticated connection",
			"remote", r.RemoteAddr, "error", err)
		_ = conn.Close(runtime.CloseAuthFailure, "authentication failed")
		return
	}

	connID, err := s.registry.Register(r.Context(), conn, userID)
	if err != nil {
		s.log.Error("Failed to register connection",
			"user_id", userID, "error", err)
		_ = conn.Close(runtime.CloseTransportError, "registration failed")
		return
	}
	s.log.Info("Connection established", "conn_id", connID, "user_id", userID)

	ws.SetReadLimit(maxFrameSize)
	ws.SetPongHandler(func(string) error {
		s.registry.Touch(connID)
		return nil
	})

	defer func() {
		s.registry.Unregister(connID)
		_ = ws.Close()
		s.log.Info("Connection closed", "conn_id", connID, "user_id", userID)
	}()

	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Read failed", "conn_id", connID, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.dispatcher.OnFrame(r.Context(), connID, raw)
	}
}
