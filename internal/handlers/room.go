package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-core/internal/dispatcher"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
	"chat-core/internal/telemetry"
	"chat-core/internal/ws"
)

// RoomHandler manages room and membership endpoints.
type RoomHandler struct {
	roomRepo repositories.RoomRepository
	hub      *ws.Hub
	emitter  *telemetry.AuditEmitter
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(roomRepo repositories.RoomRepository, hub *ws.Hub, emitter *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{roomRepo: roomRepo, hub: hub, emitter: emitter}
}

// CreateRoom creates a room with its initial member set. The creator is
// always an admin.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Title     string `json:"title"`
		Type      string `json:"type"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	room, err := h.roomRepo.CreateRoom(c.Request.Context(), req.Title, req.Type, userID, req.MemberIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title and member_ids are required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	members, err := h.roomRepo.ListMembers(c.Request.Context(), room.ID)
	if err == nil {
		for _, m := range members {
			h.hub.BroadcastRoomEvent(m.UserID, dispatcher.Added, models.RoomSummary{
				RoomID:    room.ID,
				Title:     room.Title,
				Type:      room.Type,
				Role:      m.Role,
				CreatedAt: room.CreatedAt,
			})
		}
	}

	h.audit(c, fmt.Sprintf("room %d created", room.ID))
	c.JSON(http.StatusCreated, room)
}

// ListRooms returns the caller's room summaries, newest first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	userID := c.GetInt("userID")

	rooms, err := h.roomRepo.ListRoomsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// AddMember adds a user to the room. Admin only.
func (h *RoomHandler) AddMember(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callerID := c.GetInt("userID")
	if !h.requireAdmin(c, roomID, callerID) {
		return
	}

	room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "room not found"})
		return
	}

	membership, err := h.roomRepo.AddMember(c.Request.Context(), roomID, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrAlreadyMember) {
			c.JSON(http.StatusConflict, gin.H{"error": "user is already a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}

	h.hub.BroadcastRoomEvent(req.UserID, dispatcher.Added, models.RoomSummary{
		RoomID:    room.ID,
		Title:     room.Title,
		Type:      room.Type,
		Role:      membership.Role,
		CreatedAt: room.CreatedAt,
	})

	h.audit(c, fmt.Sprintf("user %d added to room %d", req.UserID, roomID))
	c.JSON(http.StatusCreated, membership)
}

// RemoveMember removes a member. Admins can remove anyone; a member can
// remove themselves (leave).
func (h *RoomHandler) RemoveMember(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	callerID := c.GetInt("userID")
	if targetID != callerID && !h.requireAdmin(c, roomID, callerID) {
		return
	}
	if targetID == callerID {
		// self-leave still requires membership
		member, err := h.roomRepo.IsMember(c.Request.Context(), roomID, callerID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
			return
		}
	}

	if err := h.roomRepo.RemoveMember(c.Request.Context(), roomID, targetID); err != nil {
		switch {
		case errors.Is(err, repositories.ErrLastAdmin):
			c.JSON(http.StatusConflict, gin.H{"error": "cannot remove the last admin"})
		case errors.Is(err, repositories.ErrNotMember):
			c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		}
		return
	}

	if room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID); err == nil {
		h.hub.BroadcastRoomEvent(targetID, dispatcher.Removed, models.RoomSummary{
			RoomID:    room.ID,
			Title:     room.Title,
			Type:      room.Type,
			CreatedAt: room.CreatedAt,
		})
	}

	h.audit(c, fmt.Sprintf("user %d removed from room %d", targetID, roomID))
	c.Status(http.StatusNoContent)
}

// SetRole changes a member's role. The repository decides the outcome in one
// transaction, with the last-admin guard ahead of the caller's permission
// check, so demoting the sole admin is a conflict no matter who asks.
func (h *RoomHandler) SetRole(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	callerID := c.GetInt("userID")
	if err := h.roomRepo.SetRole(c.Request.Context(), roomID, callerID, targetID, req.Role); err != nil {
		switch {
		case errors.Is(err, repositories.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		case errors.Is(err, repositories.ErrLastAdmin):
			c.JSON(http.StatusConflict, gin.H{"error": "cannot demote the last admin"})
		case errors.Is(err, repositories.ErrPermission):
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		case errors.Is(err, repositories.ErrNotMember):
			c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not change role"})
		}
		return
	}

	if room, err := h.roomRepo.GetRoom(c.Request.Context(), roomID); err == nil {
		h.hub.BroadcastRoomEvent(targetID, dispatcher.Modified, models.RoomSummary{
			RoomID:    room.ID,
			Title:     room.Title,
			Type:      room.Type,
			Role:      req.Role,
			CreatedAt: room.CreatedAt,
		})
	}

	h.audit(c, fmt.Sprintf("user %d role set to %s in room %d", targetID, req.Role, roomID))
	c.Status(http.StatusNoContent)
}

// requireAdmin writes the error response itself when the caller is not an
// admin of the room.
func (h *RoomHandler) requireAdmin(c *gin.Context, roomID, callerID int) bool {
	membership, err := h.roomRepo.GetMembership(c.Request.Context(), roomID, callerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if membership.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return false
	}
	return true
}

func (h *RoomHandler) audit(c *gin.Context, text string) {
	h.emitter.Emit(c.Request.Context(), "INFO", text, requestIDFromContext(c), userIDFromContext(c))
}

func roomIDParam(c *gin.Context) (int, bool) {
	roomID, err := strconv.Atoi(c.Param("room_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return roomID, true
}
