package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/siddkalani/decaychess/internal/engine"
	"github.com/siddkalani/decaychess/internal/messages"
)

// Conn is one websocket connection. A user may hold several at once (tabs,
// reconnects); outbound events go to all of them.
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	userID string
	connID string
	send   chan []byte

	closeOnce sync.Once
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.ws.Close()
	})
}

// readPump decodes inbound envelopes until the connection dies. Runs as a
// goroutine per connection; routing happens inline so one connection's
// messages stay ordered.
func (c *Conn) readPump() {
	defer c.close()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("read failed",
					zap.String("user", c.userID), zap.String("conn", c.connID), zap.Error(err))
			}
			return
		}
		env, err := messages.Decode(raw)
		if err != nil {
			c.hub.sendError(c, engine.CodeInvalidInput, err.Error(), "")
			continue
		}
		c.hub.route(c, env)
	}
}

// writePump owns all writes to the socket: queued events plus the ping
// heartbeat.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case body, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
