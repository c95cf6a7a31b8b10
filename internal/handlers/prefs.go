package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-core/internal/presence"
	"chat-core/internal/repositories"
	"chat-core/internal/ws"
)

// PrefsHandler serves per-user room state: read markers, unread counts,
// mute flags and the REST typing fallback.
type PrefsHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	prefRepo    repositories.PrefRepository
	tracker     presence.Tracker
	hub         *ws.Hub
}

// NewPrefsHandler builds a PrefsHandler.
func NewPrefsHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, prefRepo repositories.PrefRepository, tracker presence.Tracker, hub *ws.Hub) *PrefsHandler {
	return &PrefsHandler{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		prefRepo:    prefRepo,
		tracker:     tracker,
		hub:         hub,
	}
}

// MarkRead moves the caller's read watermark to now.
func (h *PrefsHandler) MarkRead(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	userID := c.GetInt("userID")
	marker, err := h.prefRepo.MarkRead(c.Request.Context(), userID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark read"})
		return
	}
	c.JSON(http.StatusOK, marker)
}

// UnreadCount reports messages newer than the caller's watermark. A room
// never read counts as fully read.
func (h *PrefsHandler) UnreadCount(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	userID := c.GetInt("userID")
	marker, err := h.prefRepo.GetReadMarker(c.Request.Context(), userID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not count unread"})
		return
	}
	if marker == nil {
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "unread": 0})
		return
	}

	count, err := h.messageRepo.UnreadCount(c.Request.Context(), userID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not count unread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "unread": count})
}

// SetMuted stores the caller's mute preference for the room.
func (h *PrefsHandler) SetMuted(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	var req struct {
		Muted *bool `json:"muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if err := h.prefRepo.SetMuted(c.Request.Context(), userID, roomID, *req.Muted); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not save preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "muted": *req.Muted})
}

// GetMuted returns the caller's mute preference, defaulting to false.
func (h *PrefsHandler) GetMuted(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	userID := c.GetInt("userID")
	muted, err := h.prefRepo.IsMuted(c.Request.Context(), userID, roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "muted": muted})
}

// SetTyping is the REST fallback for clients without a socket. Socket
// clients send typing frames instead.
func (h *PrefsHandler) SetTyping(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	var req struct {
		IsTyping *bool `json:"is_typing" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if err := h.tracker.SetTyping(c.Request.Context(), roomID, userID, *req.IsTyping); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update typing state"})
		return
	}
	h.hub.BroadcastTyping(roomID, userID, *req.IsTyping)
	c.Status(http.StatusNoContent)
}

func (h *PrefsHandler) requireMember(c *gin.Context, roomID int) bool {
	userID := c.GetInt("userID")
	member, err := h.roomRepo.IsMember(c.Request.Context(), roomID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return false
	}
	return true
}
