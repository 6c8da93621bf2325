package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-backend/internal/auth"
	"chat-backend/internal/observability"
)

// Gateway authenticates websocket handshakes and runs connection read loops.
type Gateway struct {
	hub      *Hub
	presence *Presence
	secret   string
}

// NewGateway constructs a Gateway. The secret is the socket token secret,
// already resolved to the access-secret fallback by the caller.
func NewGateway(hub *Hub, presence *Presence, secret string) *Gateway {
	return &Gateway{hub: hub, presence: presence, secret: secret}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the handshake, upgrades the connection and registers
// the client. No event handler ever runs for a connection that failed auth.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-backend/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized, no token"})
		return
	}

	claims, err := auth.ParseToken(token, g.secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized, token failed"})
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	g.hub.Register(client)
	gen := g.presence.Connect(userID, client)
	g.hub.BroadcastOnlineUsers(g.presence.Snapshot())

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   connEventPayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	go g.readLoop(client, gen)
}

func (g *Gateway) readLoop(client *Client, gen uint64) {
	info := client.Info
	var closeReason string
	defer func() {
		g.hub.Unregister(client)
		if g.presence.Disconnect(client.UserID, gen) {
			g.hub.BroadcastOnlineUsers(g.presence.Snapshot())
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   connEventPayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
		}, observability.BuildHeaders(info.RequestID, info.TraceID))
		client.Close()
	}()

	for {
		f, err := client.ReadFrame()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		if f.ChatID == 0 {
			continue
		}
		switch f.Event {
		case "joinRoom":
			g.hub.JoinRoom(f.ChatID, client)
		case "leaveRoom":
			g.hub.LeaveRoom(f.ChatID, client)
		case "typing":
			if err := g.hub.EmitTyping(f.ChatID, client.UserID); err != nil {
				log.Printf("typing emit failed: %v", err)
			}
		case "stopTyping":
			if err := g.hub.EmitStopTyping(f.ChatID, client.UserID); err != nil {
				log.Printf("stopTyping emit failed: %v", err)
			}
		}
	}
}

func connEventPayload(info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
