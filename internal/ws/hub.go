package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-core/internal/dispatcher"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/presence"
	"chat-core/internal/repositories"
)

// Hub tracks active websocket connections and bridges the stores'
// dispatcher streams to them. Handlers publish through the Broadcast*
// methods; connection handlers consume through Subscribe*.
type Hub struct {
	dispatcher *dispatcher.Dispatcher
	roomRepo   repositories.RoomRepository
	tracker    presence.Tracker

	roomConns map[int]map[*websocket.Conn]ConnInfo
	listConns map[int]map[*websocket.Conn]ConnInfo
	mu        sync.RWMutex
}

// NewHub creates a Hub over the given dispatcher and snapshot sources.
func NewHub(d *dispatcher.Dispatcher, roomRepo repositories.RoomRepository, tracker presence.Tracker) *Hub {
	return &Hub{
		dispatcher: d,
		roomRepo:   roomRepo,
		tracker:    tracker,
		roomConns:  make(map[int]map[*websocket.Conn]ConnInfo),
		listConns:  make(map[int]map[*websocket.Conn]ConnInfo),
	}
}

// AddRoomClient registers a connection on a room's live streams.
func (h *Hub) AddRoomClient(roomID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.roomConns[roomID]; !ok {
		h.roomConns[roomID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.roomConns[roomID][conn] = info
}

// RemoveRoomClient drops a room connection.
func (h *Hub) RemoveRoomClient(roomID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.roomConns[roomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.roomConns, roomID)
		}
	}
}

// AddListClient registers a connection on a user's room-list stream.
func (h *Hub) AddListClient(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listConns[userID]; !ok {
		h.listConns[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.listConns[userID][conn] = info
}

// RemoveListClient drops a room-list connection.
func (h *Hub) RemoveListClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.listConns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.listConns, userID)
		}
	}
}

// BroadcastMessage pushes a freshly appended message to the room's live
// tail. The sender's own connection receives it the same way as everyone
// else's.
func (h *Hub) BroadcastMessage(roomID int, msg models.Message) {
	h.dispatcher.Publish(dispatcher.RoomMessagesTopic(roomID), dispatcher.Event{Type: dispatcher.Added, Entity: &msg})
}

// BroadcastTyping pushes a typing change to the room's typing stream.
func (h *Hub) BroadcastTyping(roomID int, userID int, isTyping bool) {
	evType := dispatcher.Added
	if !isTyping {
		evType = dispatcher.Removed
	}
	h.dispatcher.Publish(dispatcher.RoomTypingTopic(roomID), dispatcher.Event{
		Type:   evType,
		Entity: &models.TypingEvent{Type: "typing", RoomID: roomID, UserID: userID, IsTyping: isTyping},
	})
}

// BroadcastRoomEvent pushes a room-list change to one member's stream.
func (h *Hub) BroadcastRoomEvent(userID int, evType dispatcher.EventType, summary models.RoomSummary) {
	h.dispatcher.Publish(dispatcher.UserRoomsTopic(userID), dispatcher.Event{Type: evType, Entity: &summary})
}

// SubscribeRoom opens the live message tail for a room. The tail starts at
// subscription time; history is served by pagination.
func (h *Hub) SubscribeRoom(ctx context.Context, roomID int) (*dispatcher.Subscription, error) {
	return h.dispatcher.Subscribe(ctx, dispatcher.RoomMessagesTopic(roomID), nil)
}

// SubscribeTyping opens the typing stream; the snapshot is the set of users
// typing right now.
func (h *Hub) SubscribeTyping(ctx context.Context, roomID int) (*dispatcher.Subscription, error) {
	var snapshot dispatcher.SnapshotFunc
	if h.tracker != nil {
		snapshot = func(ctx context.Context) ([]any, error) {
			ids, err := h.tracker.ListTyping(ctx, roomID)
			if err != nil {
				return nil, err
			}
			entities := make([]any, 0, len(ids))
			for _, id := range ids {
				entities = append(entities, &models.TypingEvent{Type: "typing", RoomID: roomID, UserID: id, IsTyping: true})
			}
			return entities, nil
		}
	}
	return h.dispatcher.Subscribe(ctx, dispatcher.RoomTypingTopic(roomID), snapshot)
}

// SubscribeRooms opens a user's room-list stream; the snapshot is the full
// current list, newest first.
func (h *Hub) SubscribeRooms(ctx context.Context, userID int) (*dispatcher.Subscription, error) {
	var snapshot dispatcher.SnapshotFunc
	if h.roomRepo != nil {
		snapshot = func(ctx context.Context) ([]any, error) {
			rooms, err := h.roomRepo.ListRoomsForUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			entities := make([]any, 0, len(rooms))
			for i := range rooms {
				entities = append(entities, &rooms[i])
			}
			return entities, nil
		}
	}
	return h.dispatcher.Subscribe(ctx, dispatcher.UserRoomsTopic(userID), snapshot)
}

func (h *Hub) publishWSError(kind string, resourceID int, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(kind, resourceID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent(kind, "ws_error")
}

func (h *Hub) getConnInfo(kind string, resourceID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if kind == "room" {
		if infos, ok := h.roomConns[resourceID]; ok {
			info, exists := infos[conn]
			return info, exists
		}
		return ConnInfo{}, false
	}
	if infos, ok := h.listConns[resourceID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

func wsRoutingKey(kind string) string {
	if kind == "rooms_list" {
		return "ws_events.rooms"
	}
	return "ws_events.room"
}
