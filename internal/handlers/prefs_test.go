package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/mocks"
	"chat-core/internal/models"
)

func setupPrefsRouter(handler *PrefsHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.PUT("/rooms/:room_id/read", handler.MarkRead)
	r.GET("/rooms/:room_id/unread", handler.UnreadCount)
	r.PUT("/rooms/:room_id/mute", handler.SetMuted)
	r.GET("/rooms/:room_id/mute", handler.GetMuted)
	r.PUT("/rooms/:room_id/typing", handler.SetTyping)
	return r
}

func TestMarkReadSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	prefRepo := new(mocks.PrefRepositoryMock)
	handler := NewPrefsHandler(roomRepo, new(mocks.MessageRepositoryMock), prefRepo, new(mocks.TrackerMock), testHub())
	router := setupPrefsRouter(handler)

	marker := models.ReadMarker{UserID: 1, RoomID: 10, LastReadAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	prefRepo.On("MarkRead", mock.Anything, 1, 10).Return(marker, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/rooms/10/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.ReadMarker
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 10, got.RoomID)
	roomRepo.AssertExpectations(t)
	prefRepo.AssertExpectations(t)
}

func TestUnreadCountSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	prefRepo := new(mocks.PrefRepositoryMock)
	handler := NewPrefsHandler(roomRepo, messageRepo, prefRepo, new(mocks.TrackerMock), testHub())
	router := setupPrefsRouter(handler)

	marker := models.ReadMarker{UserID: 1, RoomID: 10, LastReadAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	prefRepo.On("GetReadMarker", mock.Anything, 1, 10).Return(&marker, nil).Once()
	messageRepo.On("UnreadCount", mock.Anything, 1, 10).Return(4, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms/10/unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Unread int `json:"unread"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 4, resp.Unread)
	roomRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	prefRepo.AssertExpectations(t)
}

func TestUnreadCountZeroWhenNeverRead(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	prefRepo := new(mocks.PrefRepositoryMock)
	handler := NewPrefsHandler(roomRepo, messageRepo, prefRepo, new(mocks.TrackerMock), testHub())
	router := setupPrefsRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	prefRepo.On("GetReadMarker", mock.Anything, 1, 10).Return(nil, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms/10/unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Unread int `json:"unread"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 0, resp.Unread)
	messageRepo.AssertNotCalled(t, "UnreadCount", mock.Anything, mock.Anything, mock.Anything)
	roomRepo.AssertExpectations(t)
	prefRepo.AssertExpectations(t)
}

func TestUnreadCountNonMember(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewPrefsHandler(roomRepo, new(mocks.MessageRepositoryMock), new(mocks.PrefRepositoryMock), new(mocks.TrackerMock), testHub())
	router := setupPrefsRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms/10/unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestSetMutedSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	prefRepo := new(mocks.PrefRepositoryMock)
	handler := NewPrefsHandler(roomRepo, new(mocks.MessageRepositoryMock), prefRepo, new(mocks.TrackerMock), testHub())
	router := setupPrefsRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	prefRepo.On("SetMuted", mock.Anything, 1, 10, true).Return(nil).Once()

	body := bytes.NewBufferString(`{"muted":true}`)
	req := httptest.NewRequest(http.MethodPut, "/rooms/10/mute", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	roomRepo.AssertExpectations(t)
	prefRepo.AssertExpectations(t)
}

func TestGetMutedDefaultsFalse(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	prefRepo := new(mocks.PrefRepositoryMock)
	handler := NewPrefsHandler(roomRepo, new(mocks.MessageRepositoryMock), prefRepo, new(mocks.TrackerMock), testHub())
	router := setupPrefsRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	prefRepo.On("IsMuted", mock.Anything, 1, 10).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms/10/mute", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Muted bool `json:"muted"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Muted)
	roomRepo.AssertExpectations(t)
	prefRepo.AssertExpectations(t)
}

func TestSetTypingSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	tracker := new(mocks.TrackerMock)
	handler := NewPrefsHandler(roomRepo, new(mocks.MessageRepositoryMock), new(mocks.PrefRepositoryMock), tracker, testHub())
	router := setupPrefsRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	tracker.On("SetTyping", mock.Anything, 10, 1, true).Return(nil).Once()

	body := bytes.NewBufferString(`{"is_typing":true}`)
	req := httptest.NewRequest(http.MethodPut, "/rooms/10/typing", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	roomRepo.AssertExpectations(t)
	tracker.AssertExpectations(t)
}

func TestSetTypingMissingFlag(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewPrefsHandler(roomRepo, new(mocks.MessageRepositoryMock), new(mocks.PrefRepositoryMock), new(mocks.TrackerMock), testHub())
	router := setupPrefsRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()

	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPut, "/rooms/10/typing", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	roomRepo.AssertExpectations(t)
}
