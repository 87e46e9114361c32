package realtime

import (
	"sync"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer
	PongWait       = 60 * time.Second
	pingPeriod     = (PongWait * 9) / 10 // 54 seconds
	sendBufferSize = 64
)

// Client is one WebSocket connection of an authenticated user. All writes to
// the socket happen in WritePump; everyone else goes through the send buffer.
type Client struct {
	ID          string
	UserID      uint64
	UserName    string
	ConnectedAt time.Time

	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, userID uint64, userName string) *Client {
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		UserName:    userName,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
	}
}

// enqueue queues payload without blocking; false means the buffer is full or the
// client is closed.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Send queues an event for this connection only
func (c *Client) Send(t EventType, data any) {
	payload, err := encodeEvent(t, data)
	if err != nil {
		logger.Log.Error("Client: failed to encode event", zap.String("type", string(t)), zap.Error(err))
		return
	}
	if !c.enqueue(payload) {
		c.Close()
	}
}

// Close stops the write pump, which then closes the socket. Safe to call twice.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Expire tells the client its session ended and closes the connection
func (c *Client) Expire(reason string) {
	c.Send(EventSessionExpired, SessionExpiredPayload{Message: reason})
	c.Close()
}

// WritePump drains the send buffer to the socket and keeps it alive with pings.
// It returns when the client is closed or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Log.Debug("Client: write failed",
					zap.String("client_id", c.ID),
					zap.Uint64("user_id", c.UserID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Debug("Client: ping failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}
