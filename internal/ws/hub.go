package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
)

// ErrInvalidEvent reports an emit call with a missing chat id or payload.
// That is a programming error in the caller, not a network fault.
var ErrInvalidEvent = errors.New("chat id and payload are required")

// Hub maintains the set of connected clients and their room subscriptions.
// Rooms are keyed by chat id and joined explicitly by the client; the hub
// never auto-subscribes a connection to the chats its user belongs to.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[int]map[*Client]bool
	clients map[*Client]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[int]map[*Client]bool),
		clients: make(map[*Client]bool),
	}
}

// Register adds a connection to the global broadcast set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// Unregister removes a connection from the global set and every room.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	for chatID, room := range h.rooms {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// JoinRoom subscribes a connection to a chat room.
func (h *Hub) JoinRoom(chatID int, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]bool)
	}
	h.rooms[chatID][c] = true
}

// LeaveRoom unsubscribes a connection from a chat room.
func (h *Hub) LeaveRoom(chatID int, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.rooms[chatID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// EmitNewMessage sends the message to the chat room and a chatListUpdate to
// every connected client so inactive chat lists can refresh.
func (h *Hub) EmitNewMessage(chatID int, msg models.MessageView) error {
	if chatID == 0 || msg.ID == 0 {
		return ErrInvalidEvent
	}
	h.toRoom(chatID, models.NewMessageEvent{Message: msg})
	h.toAll(models.ChatListUpdateEvent{ChatID: chatID, LatestMessage: msg})
	return nil
}

// EmitTyping notifies the chat room, the originator included.
func (h *Hub) EmitTyping(chatID, userID int) error {
	if chatID == 0 || userID == 0 {
		return ErrInvalidEvent
	}
	h.toRoom(chatID, models.TypingEvent{UserID: userID, ChatID: chatID})
	return nil
}

// EmitStopTyping mirrors EmitTyping.
func (h *Hub) EmitStopTyping(chatID, userID int) error {
	if chatID == 0 || userID == 0 {
		return ErrInvalidEvent
	}
	h.toRoom(chatID, models.StopTypingEvent{UserID: userID, ChatID: chatID})
	return nil
}

// BroadcastOnlineUsers pushes the full online list to every client.
func (h *Hub) BroadcastOnlineUsers(userIDs []int) {
	h.toAll(models.OnlineUsersEvent{UserIDs: userIDs})
}

func (h *Hub) toRoom(chatID int, event models.Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[chatID]))
	for c := range h.rooms[chatID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

func (h *Hub) toAll(event models.Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

func (h *Hub) deliver(targets []*Client, event models.Event) {
	for _, c := range targets {
		if err := c.Send(event); err != nil {
			log.Printf("websocket write error: %v", err)
			c.Close()
			h.Unregister(c)
			h.publishWSError(c, event.EventName(), err)
		}
	}
}

func (h *Hub) publishWSError(c *Client, eventName string, err error) {
	observability.IncWSEvent("ws_error")
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"emitting":    eventName,
			"conn_id":     c.Info.ConnID,
			"duration_ms": time.Since(c.Info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   c.Info.UserID,
			"device_id": c.Info.DeviceID,
			"ip":        c.Info.IP,
		},
	}
	headers := observability.BuildHeaders(c.Info.RequestID, c.Info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
}
