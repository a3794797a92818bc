package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is one authenticated WebSocket session: a read pump and write pump
// running concurrently, a ping/pong heartbeat keeping the connection alive
// through idle periods, and a buffered outbound channel decoupling the
// hub's broadcast from this client's write speed.
type Client struct {
	ID      string
	Owner   string
	IsAdmin bool

	conn   *websocket.Conn
	hub    *Hub
	logger *zap.Logger
	send   chan []byte
	rooms  map[string]struct{}
}

// NewClient wraps an upgraded connection as a Client.
func NewClient(id, owner string, isAdmin bool, conn *websocket.Conn, hub *Hub, logger *zap.Logger) *Client {
	return &Client{
		ID:      id,
		Owner:   owner,
		IsAdmin: isAdmin,
		conn:    conn,
		hub:     hub,
		logger:  logger,
		send:    make(chan []byte, 256),
		rooms:   make(map[string]struct{}),
	}
}

// Serve runs the client's read and write pumps until the connection
// closes or ctx is cancelled, then detaches it from the hub.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.hub.Attach(ctx, c)
	defer c.hub.Detach(c)

	go c.writePump()
	c.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("session connection closed unexpectedly", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		c.hub.HandleInbound(ctx, c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
