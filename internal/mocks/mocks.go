package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, title, roomType string, creatorID int, memberIDs []int) (models.Room, error) {
	args := m.Called(ctx, title, roomType, creatorID, memberIDs)
	return args.Get(0).(models.Room), args.Error(1)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(models.Room), args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForUser(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID)
	if rooms, ok := args.Get(0).([]models.RoomSummary); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) GetMembership(ctx context.Context, roomID int, userID int) (models.Membership, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(models.Membership), args.Error(1)
}

func (m *RoomRepositoryMock) ListMembers(ctx context.Context, roomID int) ([]models.Membership, error) {
	args := m.Called(ctx, roomID)
	if members, ok := args.Get(0).([]models.Membership); ok {
		return members, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepositoryMock) AddMember(ctx context.Context, roomID int, userID int) (models.Membership, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Get(0).(models.Membership), args.Error(1)
}

func (m *RoomRepositoryMock) RemoveMember(ctx context.Context, roomID int, userID int) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) SetRole(ctx context.Context, roomID int, callerID int, targetID int, role string) error {
	args := m.Called(ctx, roomID, callerID, targetID, role)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, roomID int, senderID int, kind, content string) (models.Message, error) {
	args := m.Called(ctx, roomID, senderID, kind, content)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MessageRepositoryMock) ListOlderThan(ctx context.Context, roomID int, cursor *repositories.Cursor, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, cursor, limit)
	if msgs, ok := args.Get(0).([]models.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, userID int, roomID int) (int, error) {
	args := m.Called(ctx, userID, roomID)
	return args.Int(0), args.Error(1)
}

type PrefRepositoryMock struct {
	mock.Mock
}

func (m *PrefRepositoryMock) MarkRead(ctx context.Context, userID int, roomID int) (models.ReadMarker, error) {
	args := m.Called(ctx, userID, roomID)
	return args.Get(0).(models.ReadMarker), args.Error(1)
}

func (m *PrefRepositoryMock) GetReadMarker(ctx context.Context, userID int, roomID int) (*models.ReadMarker, error) {
	args := m.Called(ctx, userID, roomID)
	if marker, ok := args.Get(0).(*models.ReadMarker); ok {
		return marker, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PrefRepositoryMock) SetMuted(ctx context.Context, userID int, roomID int, muted bool) error {
	args := m.Called(ctx, userID, roomID, muted)
	return args.Error(0)
}

func (m *PrefRepositoryMock) IsMuted(ctx context.Context, userID int, roomID int) (bool, error) {
	args := m.Called(ctx, userID, roomID)
	return args.Bool(0), args.Error(1)
}

type TrackerMock struct {
	mock.Mock
}

func (m *TrackerMock) SetTyping(ctx context.Context, roomID int, userID int, isTyping bool) error {
	args := m.Called(ctx, roomID, userID, isTyping)
	return args.Error(0)
}

func (m *TrackerMock) ListTyping(ctx context.Context, roomID int) ([]int, error) {
	args := m.Called(ctx, roomID)
	if ids, ok := args.Get(0).([]int); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

type StorageMock struct {
	mock.Mock
}

func (m *StorageMock) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, key, r, size, contentType)
	return args.String(0), args.Error(1)
}
