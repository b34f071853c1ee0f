package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum control message size; bounded by SDP offers with many m-lines
	maxMessageSize = 65536

	sendBuffer = 256
)

var errBufferFull = errors.New("client send buffer full")

// Client wraps one websocket connection. Outbound delivery goes through a
// bounded channel drained by WritePump; a full buffer drops the message so a
// slow peer never blocks a broadcast.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
	roomID string
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: logger,
	}
}

// Send queues a payload for delivery. Implements room.Sender.
func (c *Client) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping message", "userId", c.userID)
		return errBufferFull
	}
}

func (c *Client) sendError(reason string) {
	_ = c.Send(errorJSON(reason))
}

// writeDirect writes on the connection synchronously. Only safe before the
// write pump has started.
func (c *Client) writeDirect(payload []byte) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.TextMessage, payload)
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. One per connection; owns all writes.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readMessage blocks for the next inbound frame, refreshing the read
// deadline via the pong handler installed in prepareRead.
func (c *Client) readMessage() ([]byte, error) {
	_, payload, err := c.conn.ReadMessage()
	return payload, err
}

func (c *Client) prepareRead() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}
