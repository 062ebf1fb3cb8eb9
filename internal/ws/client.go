package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/flipflop-server/internal/obslog"
)

const (
	outboxSize   = 64
	writeTimeout = 10 * time.Second
)

// client owns the outbound side of one connection. Sends go through a
// buffered queue drained by a single writer goroutine, so room broadcasts
// never block on the socket. A client that cannot keep up is cut loose.
type client struct {
	id   string
	conn *websocket.Conn

	outbox chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:     id,
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
		closed: make(chan struct{}),
	}
}

func (c *client) ClientID() string { return c.id }

// Send enqueues a frame without blocking. A full queue means the reader on
// the other end stalled; drop the connection rather than the room.
func (c *client) Send(msg []byte) {
	select {
	case <-c.closed:
	case c.outbox <- msg:
	default:
		obslog.L().Warn("client_outbox_full", zap.String("client_id", c.id))
		c.close(websocket.StatusPolicyViolation, "send queue overflow")
	}
}

// Kick severs the socket after its identity was claimed by a newer
// connection.
func (c *client) Kick(reason string) {
	obslog.L().Info("client_kicked", zap.String("client_id", c.id), zap.String("reason", reason))
	c.close(websocket.StatusPolicyViolation, reason)
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close(code, reason)
	})
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.close(websocket.StatusAbnormalClosure, "write failure")
				return
			}
		}
	}
}
