package ws

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-core/internal/auth"
	"chat-core/internal/dispatcher"
	"chat-core/internal/logging"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/presence"
	"chat-core/internal/repositories"
)

// RoomWebSocketHandler serves a room's combined live streams: the message
// tail and the typing set, on one socket.
type RoomWebSocketHandler struct {
	hub      *Hub
	roomRepo repositories.RoomRepository
	tracker  presence.Tracker
	verifier *auth.Verifier
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *Hub, roomRepo repositories.RoomRepository, tracker presence.Tracker, verifier *auth.Verifier) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, roomRepo: roomRepo, tracker: tracker, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// typingFrame is the only client-to-server frame; everything else flows
// through the REST surface.
type typingFrame struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// Handle upgrades the connection and pumps events until either side closes.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	ctx, span := otel.Tracer("chat-core/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	member, err := h.roomRepo.IsMember(c.Request.Context(), roomID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for room"})
		return
	}

	msgSub, err := h.hub.SubscribeRoom(ctx, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription failed"})
		return
	}
	typingSub, err := h.hub.SubscribeTyping(ctx, roomID)
	if err != nil {
		msgSub.Cancel()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscription failed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		msgSub.Cancel()
		typingSub.Cancel()
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
	h.hub.AddRoomClient(roomID, conn, info)

	observability.IncWSActive("room")
	observability.IncWSEvent("room", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.room", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   wsPayload("room", roomID, "ws_connect", info, 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	// The request context dies when the handshake returns (the connection is
	// hijacked), but the read loop's tracker and broadcast calls must live as
	// long as the socket. Detach cancellation, keep the trace values.
	connCtx := context.WithoutCancel(ctx)

	go h.writeLoop(roomID, userID, conn, msgSub, typingSub)
	go h.readLoop(connCtx, roomID, userID, conn, info, msgSub, typingSub, requestID, traceID)
}

// writeLoop serializes both streams onto the socket. Typing events from the
// subscriber itself are filtered out.
func (h *RoomWebSocketHandler) writeLoop(roomID, userID int, conn *websocket.Conn, msgSub, typingSub *dispatcher.Subscription) {
	for {
		select {
		case ev, ok := <-msgSub.Events():
			if !ok {
				return
			}
			msg, isMsg := ev.Entity.(*models.Message)
			if !isMsg {
				continue
			}
			if err := conn.WriteJSON(models.MessageEvent{Type: string(ev.Type), Message: msg}); err != nil {
				h.dropConn(roomID, conn, err)
				return
			}
		case ev, ok := <-typingSub.Events():
			if !ok {
				return
			}
			typing, isTyping := ev.Entity.(*models.TypingEvent)
			if !isTyping || typing.UserID == userID {
				continue
			}
			if err := conn.WriteJSON(typing); err != nil {
				h.dropConn(roomID, conn, err)
				return
			}
		}
	}
}

// readLoop consumes typing frames and cleans up on close.
func (h *RoomWebSocketHandler) readLoop(ctx context.Context, roomID, userID int, conn *websocket.Conn, info ConnInfo, msgSub, typingSub *dispatcher.Subscription, requestID, traceID string) {
	var closeReason string
	defer func() {
		msgSub.Cancel()
		typingSub.Cancel()
		h.hub.RemoveRoomClient(roomID, conn)
		if err := h.tracker.SetTyping(ctx, roomID, userID, false); err != nil {
			logging.L().Warn().Err(err).Int("room_id", roomID).Msg("clear typing on disconnect")
		}
		observability.DecWSActive("room")
		observability.IncWSEvent("room", "ws_disconnect")
		_ = observability.PublishEvent(ctx, "ws_events.room", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   wsPayload("room", roomID, "ws_disconnect", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason),
		}, observability.BuildHeaders(requestID, traceID))
		conn.Close()
	}()

	for {
		var frame typingFrame
		if err := conn.ReadJSON(&frame); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("room", "ws_error")
				_ = observability.PublishEvent(ctx, "ws_events.room", observability.EventEnvelope{
					EventType: "ws_events",
					EventName: "ws_error",
					Payload:   wsPayload("room", roomID, "ws_error", info, time.Since(info.ConnectedAt).Milliseconds(), closeReason),
				}, observability.BuildHeaders(requestID, traceID))
			}
			return
		}
		if frame.Type != "typing" {
			continue
		}
		if err := h.tracker.SetTyping(ctx, roomID, userID, frame.IsTyping); err != nil {
			logging.L().Warn().Err(err).Int("room_id", roomID).Msg("set typing")
			continue
		}
		h.hub.BroadcastTyping(roomID, userID, frame.IsTyping)
	}
}

func (h *RoomWebSocketHandler) dropConn(roomID int, conn *websocket.Conn, err error) {
	logging.L().Warn().Err(err).Int("room_id", roomID).Msg("websocket write error")
	h.hub.publishWSError("room", roomID, conn, err)
	h.hub.RemoveRoomClient(roomID, conn)
	conn.Close()
}

func (h *RoomWebSocketHandler) authenticate(c *gin.Context) (int, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}
	parts := strings.Split(token, " ")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid token")
	}
	return h.verifier.Verify(parts[1])
}

func wsPayload(kind string, resourceID int, event string, info ConnInfo, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
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
