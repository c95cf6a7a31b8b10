package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/repositories"
	"chat-core/internal/storage"
	"chat-core/internal/ws"
)

const (
	maxMessageLength   = 300
	defaultPageLimit   = 50
	maxPageLimit       = 100
	imageFormFieldName = "image"
)

// MessageHandler serves the paginated history and the send endpoints.
type MessageHandler struct {
	roomRepo    repositories.RoomRepository
	messageRepo repositories.MessageRepository
	store       storage.Storage
	hub         *ws.Hub
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, store storage.Storage, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		store:       store,
		hub:         hub,
	}
}

// GetRoomMessages returns one backward page of history, oldest first. An
// absent cursor yields the newest page; an empty page means history is
// exhausted and carries no cursor.
func (h *MessageHandler) GetRoomMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	cursor, err := repositories.DecodeCursor(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	limit := defaultPageLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}

	msgs, err := h.messageRepo.ListOlderThan(c.Request.Context(), roomID, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	nextCursor := ""
	if len(msgs) == limit {
		oldest := msgs[0]
		nextCursor = repositories.EncodeCursor(repositories.Cursor{CreatedAt: oldest.CreatedAt, ID: oldest.ID})
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "next_cursor": nextCursor})
}

// PostMessage appends a text message and broadcasts it to the room's live
// tail. The sender receives it over the socket like any other member.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" || len([]rune(content)) > maxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must be 1 to 300 characters"})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), roomID, userID, models.MessageKindText, content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.BroadcastMessage(roomID, msg)
	observability.IncMessageSent(models.MessageKindText)
	c.JSON(http.StatusCreated, msg)
}

// PostImage uploads an image blob and appends a message holding only its
// URL. Oversized uploads are rejected before any byte reaches storage, and
// a storage failure persists nothing.
func (h *MessageHandler) PostImage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	if !h.requireMember(c, roomID) {
		return
	}

	fileHeader, err := c.FormFile(imageFormFieldName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if fileHeader.Size > storage.MaxUploadSize {
		observability.IncUploadFailure("size_limit")
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 5MB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
		return
	}
	defer file.Close()

	userID := c.GetInt("userID")
	key := fmt.Sprintf("rooms/%d/%s%s", roomID, uuid.NewString(), filepath.Ext(fileHeader.Filename))
	url, err := h.store.Upload(c.Request.Context(), key, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, storage.ErrSizeLimit) {
			observability.IncUploadFailure("size_limit")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 5MB limit"})
			return
		}
		observability.IncUploadFailure("storage")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upload failed"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), roomID, userID, models.MessageKindImage, url)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	h.hub.BroadcastMessage(roomID, msg)
	observability.IncMessageSent(models.MessageKindImage)
	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) requireMember(c *gin.Context, roomID int) bool {
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
