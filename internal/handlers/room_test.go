package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/dispatcher"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
	"chat-core/internal/repositories"
	"chat-core/internal/ws"
)

func testHub() *ws.Hub {
	return ws.NewHub(dispatcher.New(), nil, nil)
}

func setupRoomRouter(handler *RoomHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/rooms", handler.CreateRoom)
	r.GET("/rooms", handler.ListRooms)
	r.POST("/rooms/:room_id/members", handler.AddMember)
	r.DELETE("/rooms/:room_id/members/:user_id", handler.RemoveMember)
	r.PUT("/rooms/:room_id/members/:user_id/role", handler.SetRole)
	return r
}

func TestCreateRoomSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("CreateRoom", mock.Anything, "general", "group", 1, []int{2, 3}).
		Return(models.Room{ID: 10, Title: "general", Type: models.RoomTypeGroup, CreatedBy: 1}, nil).Once()
	roomRepo.On("ListMembers", mock.Anything, 10).Return([]models.Membership{
		{RoomID: 10, UserID: 1, Role: models.RoleAdmin},
		{RoomID: 10, UserID: 2, Role: models.RoleMember},
		{RoomID: 10, UserID: 3, Role: models.RoleMember},
	}, nil).Once()

	body := bytes.NewBufferString(`{"title":"general","type":"group","member_ids":[2,3]}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var room models.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&room))
	assert.Equal(t, 10, room.ID)
	roomRepo.AssertExpectations(t)
}

func TestCreateRoomValidationError(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("CreateRoom", mock.Anything, "", "group", 1, []int(nil)).
		Return(models.Room{}, repositories.ErrValidation).Once()

	body := bytes.NewBufferString(`{"title":"","type":"group"}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestListRoomsSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("ListRoomsForUser", mock.Anything, 1).
		Return([]models.RoomSummary{{RoomID: 10, Title: "general", Role: models.RoleAdmin}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Rooms []models.RoomSummary `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, 10, resp.Rooms[0].RoomID)
	roomRepo.AssertExpectations(t)
}

func TestAddMemberAsAdmin(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetMembership", mock.Anything, 10, 1).
		Return(models.Membership{RoomID: 10, UserID: 1, Role: models.RoleAdmin}, nil).Once()
	roomRepo.On("GetRoom", mock.Anything, 10).
		Return(models.Room{ID: 10, Title: "general", Type: models.RoomTypeGroup}, nil).Once()
	roomRepo.On("AddMember", mock.Anything, 10, 5).
		Return(models.Membership{RoomID: 10, UserID: 5, Role: models.RoleMember}, nil).Once()

	body := bytes.NewBufferString(`{"user_id":5}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/10/members", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetMembership", mock.Anything, 10, 1).
		Return(models.Membership{RoomID: 10, UserID: 1, Role: models.RoleMember}, nil).Once()

	body := bytes.NewBufferString(`{"user_id":5}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/10/members", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestAddMemberAlreadyMember(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetMembership", mock.Anything, 10, 1).
		Return(models.Membership{RoomID: 10, UserID: 1, Role: models.RoleAdmin}, nil).Once()
	roomRepo.On("GetRoom", mock.Anything, 10).
		Return(models.Room{ID: 10, Title: "general"}, nil).Once()
	roomRepo.On("AddMember", mock.Anything, 10, 5).
		Return(models.Membership{}, repositories.ErrAlreadyMember).Once()

	body := bytes.NewBufferString(`{"user_id":5}`)
	req := httptest.NewRequest(http.MethodPost, "/rooms/10/members", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestRemoveMemberLastAdminConflict(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	roomRepo.On("RemoveMember", mock.Anything, 10, 1).Return(repositories.ErrLastAdmin).Once()

	req := httptest.NewRequest(http.MethodDelete, "/rooms/10/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestRemoveMemberSelfLeave(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("IsMember", mock.Anything, 10, 1).Return(true, nil).Once()
	roomRepo.On("RemoveMember", mock.Anything, 10, 1).Return(nil).Once()
	roomRepo.On("GetRoom", mock.Anything, 10).
		Return(models.Room{ID: 10, Title: "general"}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/rooms/10/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestRemoveOtherMemberRequiresAdmin(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("GetMembership", mock.Anything, 10, 1).
		Return(models.Membership{RoomID: 10, UserID: 1, Role: models.RoleMember}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/rooms/10/members/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestSetRoleDemoteLastAdminConflict(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("SetRole", mock.Anything, 10, 1, 1, "member").Return(repositories.ErrLastAdmin).Once()

	body := bytes.NewBufferString(`{"role":"member"}`)
	req := httptest.NewRequest(http.MethodPut, "/rooms/10/members/1/role", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	roomRepo.AssertExpectations(t)
}

// A plain member asking to demote the room's only admin learns about the
// guard, not about their missing permission. Caller 1 is not an admin here;
// the repository still reports the last-admin conflict first.
func TestSetRoleLastAdminGuardBeatsPermission(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("SetRole", mock.Anything, 10, 1, 7, "member").Return(repositories.ErrLastAdmin).Once()

	body := bytes.NewBufferString(`{"role":"member"}`)
	req := httptest.NewRequest(http.MethodPut, "/rooms/10/members/7/role", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestSetRoleRequiresAdmin(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("SetRole", mock.Anything, 10, 1, 5, "admin").Return(repositories.ErrPermission).Once()

	body := bytes.NewBufferString(`{"role":"admin"}`)
	req := httptest.NewRequest(http.MethodPut, "/rooms/10/members/5/role", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	roomRepo.AssertExpectations(t)
}

func TestSetRoleSuccess(t *testing.T) {
	roomRepo := new(mocks.RoomRepositoryMock)
	handler := NewRoomHandler(roomRepo, testHub(), nil)
	router := setupRoomRouter(handler)

	roomRepo.On("SetRole", mock.Anything, 10, 1, 5, "admin").Return(nil).Once()
	roomRepo.On("GetRoom", mock.Anything, 10).
		Return(models.Room{ID: 10, Title: "general"}, nil).Once()

	body := bytes.NewBufferString(`{"role":"admin"}`)
	req := httptest.NewRequest(http.MethodPut, "/rooms/10/members/5/role", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	roomRepo.AssertExpectations(t)
}
