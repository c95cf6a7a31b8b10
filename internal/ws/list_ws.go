package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"chat-core/internal/auth"
	"chat-core/internal/logging"
	"chat-core/internal/models"
	"chat-core/internal/observability"
)

// ListWebSocketHandler serves a user's live room list: full snapshot first,
// then added/modified/removed events as membership changes.
type ListWebSocketHandler struct {
	hub      *Hub
	verifier *auth.Verifier
}

// NewListWebSocketHandler constructs a ListWebSocketHandler.
func NewListWebSocketHandler(hub *Hub, verifier *auth.Verifier) *ListWebSocketHandler {
	return &ListWebSocketHandler{hub: hub, verifier: verifier}
}

// Handle upgrades the connection and streams room-list events.
func (h *ListWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-core/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	roomHandler := RoomWebSocketHandler{verifier: h.verifier}
	userID, err := roomHandler.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	sub, err := h.hub.SubscribeRooms(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription failed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Cancel()
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddListClient(userID, conn, info)

	observability.IncWSActive("rooms_list")
	observability.IncWSEvent("rooms_list", "ws_connect")

	go func() {
		for ev := range sub.Events() {
			summary, ok := ev.Entity.(*models.RoomSummary)
			if !ok {
				continue
			}
			if err := conn.WriteJSON(models.RoomEvent{Type: string(ev.Type), Room: summary}); err != nil {
				logging.L().Warn().Err(err).Int("user_id", userID).Msg("websocket write error")
				h.hub.publishWSError("rooms_list", userID, conn, err)
				h.hub.RemoveListClient(userID, conn)
				conn.Close()
				return
			}
		}
	}()

	go func() {
		defer func() {
			sub.Cancel()
			h.hub.RemoveListClient(userID, conn)
			observability.DecWSActive("rooms_list")
			observability.IncWSEvent("rooms_list", "ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
