package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	CreateRoom(ctx context.Context, title, roomType string, creatorID int, memberIDs []int) (models.Room, error)
	GetRoom(ctx context.Context, roomID int) (models.Room, error)
	ListRoomsForUser(ctx context.Context, userID int) ([]models.RoomSummary, error)
	IsMember(ctx context.Context, roomID int, userID int) (bool, error)
	GetMembership(ctx context.Context, roomID int, userID int) (models.Membership, error)
	ListMembers(ctx context.Context, roomID int) ([]models.Membership, error)
	AddMember(ctx context.Context, roomID int, userID int) (models.Membership, error)
	RemoveMember(ctx context.Context, roomID int, userID int) error
	SetRole(ctx context.Context, roomID int, callerID int, targetID int, role string) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom creates the room and all memberships atomically. The creator is
// always an admin regardless of whether it appears in memberIDs.
func (r *RoomRepo) CreateRoom(ctx context.Context, title, roomType string, creatorID int, memberIDs []int) (models.Room, error) {
	if strings.TrimSpace(title) == "" || len(memberIDs) == 0 {
		return models.Room{}, ErrValidation
	}
	if roomType != models.RoomTypeDirect {
		roomType = models.RoomTypeGroup
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var room models.Room
	if err = tx.QueryRowxContext(ctx, `INSERT INTO rooms (title, room_type, created_by) VALUES ($1, $2, $3) RETURNING id, title, room_type, created_by, created_at`, title, roomType, creatorID).
		StructScan(&room); err != nil {
		return models.Room{}, err
	}

	memberSet := map[int]struct{}{}
	for _, id := range memberIDs {
		if id != creatorID {
			memberSet[id] = struct{}{}
		}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)`, room.ID, creatorID, models.RoleAdmin); err != nil {
		return models.Room{}, err
	}
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3)`, room.ID, id, models.RoleMember); err != nil {
			return models.Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// GetRoom fetches a single room.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, title, room_type, created_by, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// ListRoomsForUser returns the user's rooms, newest first.
func (r *RoomRepo) ListRoomsForUser(ctx context.Context, userID int) ([]models.RoomSummary, error) {
	var rooms []models.RoomSummary
	err := r.db.SelectContext(ctx, &rooms, `SELECT r.id, r.title, r.room_type, rm.role, r.created_at
        FROM rooms r INNER JOIN room_members rm ON rm.room_id = r.id
        WHERE rm.user_id=$1 ORDER BY r.created_at DESC, r.id DESC`, userID)
	return rooms, err
}

// IsMember checks membership.
func (r *RoomRepo) IsMember(ctx context.Context, roomID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// GetMembership fetches a single membership row.
func (r *RoomRepo) GetMembership(ctx context.Context, roomID int, userID int) (models.Membership, error) {
	var m models.Membership
	err := r.db.GetContext(ctx, &m, `SELECT room_id, user_id, role, joined_at FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Membership{}, ErrNotMember
	}
	return m, err
}

// ListMembers returns all memberships of a room.
func (r *RoomRepo) ListMembers(ctx context.Context, roomID int) ([]models.Membership, error) {
	var members []models.Membership
	err := r.db.SelectContext(ctx, &members, `SELECT room_id, user_id, role, joined_at FROM room_members WHERE room_id=$1 ORDER BY joined_at ASC, user_id ASC`, roomID)
	return members, err
}

// AddMember inserts a membership with role member.
func (r *RoomRepo) AddMember(ctx context.Context, roomID int, userID int) (models.Membership, error) {
	exists, err := r.IsMember(ctx, roomID, userID)
	if err != nil {
		return models.Membership{}, err
	}
	if exists {
		return models.Membership{}, ErrAlreadyMember
	}

	var m models.Membership
	err = r.db.QueryRowxContext(ctx, `INSERT INTO room_members (room_id, user_id, role) VALUES ($1, $2, $3) RETURNING room_id, user_id, role, joined_at`, roomID, userID, models.RoleMember).
		StructScan(&m)
	return m, err
}

// RemoveMember deletes a membership, refusing to strand the room without an
// admin. The guard runs in the same transaction as the delete.
func (r *RoomRepo) RemoveMember(ctx context.Context, roomID int, userID int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var role string
	err = tx.GetContext(ctx, &role, `SELECT role FROM room_members WHERE room_id=$1 AND user_id=$2 FOR UPDATE`, roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotMember
		return err
	}
	if err != nil {
		return err
	}

	if role == models.RoleAdmin {
		var admins int
		if err = tx.GetContext(ctx, &admins, `SELECT COUNT(*) FROM room_members WHERE room_id=$1 AND role=$2`, roomID, models.RoleAdmin); err != nil {
			return err
		}
		if admins <= 1 {
			err = ErrLastAdmin
			return err
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// SetRole updates a member's role. The last-admin guard is evaluated before
// the caller's permission, so demoting the room's only admin reports the
// conflict even when the caller could never have committed the change.
func (r *RoomRepo) SetRole(ctx context.Context, roomID int, callerID int, targetID int, role string) error {
	if role != models.RoleAdmin && role != models.RoleMember {
		return ErrValidation
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var current string
	err = tx.GetContext(ctx, &current, `SELECT role FROM room_members WHERE room_id=$1 AND user_id=$2 FOR UPDATE`, roomID, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotMember
		return err
	}
	if err != nil {
		return err
	}

	if current == models.RoleAdmin && role != models.RoleAdmin {
		var admins int
		if err = tx.GetContext(ctx, &admins, `SELECT COUNT(*) FROM room_members WHERE room_id=$1 AND role=$2`, roomID, models.RoleAdmin); err != nil {
			return err
		}
		if admins <= 1 {
			err = ErrLastAdmin
			return err
		}
	}

	var callerRole string
	err = tx.GetContext(ctx, &callerRole, `SELECT role FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, callerID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && callerRole != models.RoleAdmin) {
		err = ErrPermission
		return err
	}
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE room_members SET role=$3 WHERE room_id=$1 AND user_id=$2`, roomID, targetID, role); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}
