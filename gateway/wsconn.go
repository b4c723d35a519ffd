package gateway

import (
	"sync"
	"time"

	"chat-gateway/runtime"

	"github.com/gorilla/websocket"
)

// wsConn adapts a gorilla connection to the registry's transport
// contract. gorilla allows one concurrent writer only, so a mutex
// serializes frame, ping and close writes issued from the dispatcher,
// the fan-out and the liveness worker.
type wsConn struct {
	mu       sync.Mutex
	ws       *websocket.Conn
	deadline time.Duration
}

func newWSConn(ws *websocket.Conn, deadline time.Duration) *wsConn {
	return &wsConn{ws: ws, deadline: deadline}
}

// Send writes one text frame under a write deadline, so a stalled peer
// cannot hold the sender hostage.
func (c *wsConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.deadline)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.deadline))
}

// Close sends a close frame carrying the policy reason, then tears the
// transport down. The write is best effort: the peer may already be gone.
func (c *wsConn) Close(code runtime.CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(closeStatus(code), reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.deadline))
	return c.ws.Close()
}

func closeStatus(code runtime.CloseCode) int {
	switch code {
	case runtime.CloseAuthFailure:
		return websocket.ClosePolicyViolation
	case runtime.CloseLivenessTimeout:
		return websocket.CloseGoingAway
	default:
		return websocket.CloseInternalServerErr
	}
}
