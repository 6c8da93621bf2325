package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-backend/internal/models"
)

// ConnInfo carries identity and correlation data for a connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one websocket connection. Writes are serialized through the
// client's mutex; gorilla connections do not allow concurrent writers.
type Client struct {
	UserID int
	Info   ConnInfo

	conn *websocket.Conn
	mu   sync.Mutex
}

// NewClient wraps a websocket connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{UserID: info.UserID, Info: info, conn: conn}
}

// frame is the wire envelope for outbound events.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inboundFrame is a client-to-server command.
type inboundFrame struct {
	Event  string `json:"event"`
	ChatID int    `json:"chatId"`
}

// Send marshals and writes one event to the connection.
func (c *Client) Send(event models.Event) error {
	payload, err := json.Marshal(frame{Event: event.EventName(), Data: event.EventData()})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// ReadFrame blocks for the next inbound command.
func (c *Client) ReadFrame() (inboundFrame, error) {
	var f inboundFrame
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(payload, &f); err != nil {
		return inboundFrame{}, nil // malformed frames are dropped, not fatal
	}
	return f, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
